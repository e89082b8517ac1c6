package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name, e.g. TRACEBUS_QUEUE_DEFAULT_CAPACITY.
const EnvPrefix = "TRACEBUS_"

// FromEnv overlays TRACEBUS_* environment variables onto cfg. Unset variables
// leave the existing value untouched.
func FromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
