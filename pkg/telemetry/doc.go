// Package telemetry groups the observability of tailtrace itself.
//
// # Components
//
//   - logging: slog setup with runtime level changes, PII redaction and
//     request/trace ids pulled from the context
//   - metrics: Prometheus counters and histograms for the tracer, the
//     collector's ingest path and the analyzer
//   - health: liveness and readiness probes over component checks
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	slog.SetDefault(logger.Slog())
//
//	mc := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, mc.Handler())
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("span_log", health.PingCheck(spanLog))
package telemetry
