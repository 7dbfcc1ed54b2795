package config

import (
	"fmt"
	"sync/atomic"
)

// current is the process-wide configuration read by long-running
// components after a hot reload.
var current atomic.Pointer[Config]

// GetConfig returns the process-wide configuration, or nil if none was set.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the process-wide configuration.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path with environment overrides and, if it is valid,
// publishes it. On failure the current configuration is kept.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return cfg, nil
}

// MustGetConfig returns the process-wide configuration and panics if none
// was set.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("configuration not set: load it with ReloadConfig or SetConfig first")
	}
	return cfg
}
