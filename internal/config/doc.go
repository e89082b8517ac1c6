// Package config provides loading and environment overlay for tracebus
// configuration. It exposes a Default() baseline, file loading (JSON or YAML)
// and a TRACEBUS_* environment overlay.
//
// Example:
//
//	cfg, err := config.Load("/etc/tracebus.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
