// Package metrics exposes Prometheus metrics for the tracer, the collector
// and the analyzer.
//
// Components accept an optional *Collector; a nil collector records nothing.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
