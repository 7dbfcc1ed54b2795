package main

import (
	"fmt"
	"log/slog"

	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/config"
	"mercator-hq/tailtrace/pkg/spanlog"
	"mercator-hq/tailtrace/pkg/telemetry/logging"
)

// loadConfig loads --config with environment overrides and publishes it as
// the process-wide configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	if verbose {
		lc.Level = "debug"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())
	return logger, nil
}

func spanlogConfig(sc config.StorageConfig) spanlog.Config {
	return spanlog.Config{
		Backend: sc.Backend,
		File: spanlog.FileConfig{
			Path: sc.File.Path,
			Sync: sc.File.Sync,
		},
		SQLite: spanlog.SQLiteConfig{
			Path:         sc.SQLite.Path,
			Driver:       sc.SQLite.Driver,
			WALMode:      sc.SQLite.WALMode,
			BusyTimeout:  sc.SQLite.BusyTimeout,
			MaxOpenConns: sc.SQLite.MaxOpenConns,
		},
	}
}

func openSpanLog(cfg *config.Config) (spanlog.Log, error) {
	log, err := spanlog.Open(spanlogConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s span log: %w", cfg.Storage.Backend, err)
	}
	return log, nil
}
