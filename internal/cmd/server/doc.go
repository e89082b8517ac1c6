// Package serverrun exposes the Run entrypoint used by the CLI to start the
// tracebus daemon: it loads configuration, opens the runtime, serves the
// HTTP and gRPC surfaces, and tears every consumer queue down on shutdown.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{ConfigPath: "/etc/tracebus.yaml"})
package serverrun
