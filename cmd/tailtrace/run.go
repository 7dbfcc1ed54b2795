package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/collector"
	"mercator-hq/tailtrace/pkg/config"
	"mercator-hq/tailtrace/pkg/index"
	"mercator-hq/tailtrace/pkg/report"
	"mercator-hq/tailtrace/pkg/server"
	"mercator-hq/tailtrace/pkg/telemetry/health"
	"mercator-hq/tailtrace/pkg/telemetry/logging"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the collector and analysis server",
	Long: `Start the span collector and the trace analysis API.

On startup the index is rebuilt from the span log, so traces collected
before a restart are served again.

Examples:
  # Start with defaults (file log at data/traces.ndjson)
  tailtrace run

  # Start with a config file; log level changes are applied live
  tailtrace run --config /etc/tailtrace/config.yaml

  # Override listen address
  tailtrace run --listen 0.0.0.0:3000

  # Validate config without starting the server
  tailtrace run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("flags", err.Error())
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, cancel := cli.SetupSignalHandler(cmd.Context())
	defer cancel()

	mc := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	spanLog, err := openSpanLog(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	idx := index.New(cfg.Index.Shards)
	coll := collector.New(spanLog, idx, collector.WithMetrics(mc))
	defer coll.Close()

	stats, err := coll.Recover(ctx)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Span log %s: recovered %d spans in %d traces (%d skipped)\n",
		spanLog.Name(), idx.SpanCount(), idx.Len(), stats.Skipped)

	an := analyzer.FromIndex(idx,
		analyzer.WithSettleAfter(cfg.Analyzer.SettleAfter),
		analyzer.WithMetrics(mc),
	)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("span_log", health.PingCheck(spanLog))

	sched := report.NewScheduler(an, report.Config{
		Schedule: cfg.Analyzer.ReportSchedule,
		TopN:     cfg.Analyzer.TopN,
	})
	if err := sched.Start(ctx); err != nil {
		slog.Warn("failed to start slow-trace report", "error", err)
	} else if next := sched.NextRun(); next != nil {
		slog.Debug("slow-trace report scheduled", "next_run", next)
	}
	defer sched.Stop()

	if cfgFile != "" {
		stop, err := watchConfig(cmd, logger)
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer stop()
		}
	}

	srv := server.New(cfg, server.Deps{
		Collector: coll,
		Analyzer:  an,
		Health:    checker,
		Metrics:   mc,
		Version:   Version,
		Commit:    GitCommit,
	})

	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "  Ingest:  POST http://%s/ingest\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "  Summary: GET  http://%s/summary\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "  Metrics: GET  http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// watchConfig applies the log level of every valid edit to --config. Other
// settings take effect on restart.
func watchConfig(cmd *cobra.Command, logger *logging.Logger) (func(), error) {
	watcher, err := config.NewWatcher(cfgFile, config.DefaultDebounceInterval)
	if err != nil {
		return nil, err
	}

	go func() {
		err := watcher.Watch(cmd.Context(), func(cfg *config.Config) {
			level := cfg.Telemetry.Logging.Level
			if verbose {
				level = "debug"
			}
			if err := logger.SetLevel(level); err != nil {
				slog.Warn("ignoring reloaded log level", "level", level, "error", err)
				return
			}
			slog.Info("log level applied", "level", level)
		})
		if err != nil {
			slog.Error("config watcher stopped", "error", err)
		}
	}()

	return func() { watcher.Stop() }, nil
}
