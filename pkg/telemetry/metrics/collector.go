package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tailtrace/pkg/config"
)

// Collector owns the Prometheus registry and every tailtrace metric.
//
// All Record* methods are safe on a nil *Collector and when metrics are
// disabled, so components can take an optional collector without guarding
// each call site.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	tracer   *TracerMetrics
	ingest   *IngestMetrics
	analysis *AnalysisMetrics
}

// NewCollector creates a collector and registers its metrics. A nil registry
// gets a fresh one.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "tailtrace"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		tracer:   NewTracerMetrics(cfg, registry),
		ingest:   NewIngestMetrics(cfg, registry),
		analysis: NewAnalysisMetrics(cfg, registry),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordSpanStarted counts a span started by service.
func (c *Collector) RecordSpanStarted(service string) {
	if !c.enabled() {
		return
	}
	c.tracer.started.WithLabelValues(service).Inc()
}

// RecordSpanFinished counts a finished span by its send decision:
// "head", "tail" or "dropped".
func (c *Collector) RecordSpanFinished(service, decision string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.tracer.finished.WithLabelValues(service, decision).Inc()
	c.tracer.duration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordTransmitFailure counts a span that could not be delivered.
func (c *Collector) RecordTransmitFailure(service string) {
	if !c.enabled() {
		return
	}
	c.tracer.transmitFailures.WithLabelValues(service).Inc()
}

// RecordIngest counts an ingest attempt by result: "stored", "dropped",
// "invalid" or "failed".
func (c *Collector) RecordIngest(result string) {
	if !c.enabled() {
		return
	}
	c.ingest.total.WithLabelValues(result).Inc()
}

// RecordAppend observes the latency of one durable log append.
func (c *Collector) RecordAppend(backend string, d time.Duration) {
	if !c.enabled() {
		return
	}
	c.ingest.appendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// SetIndexedTraces reports the current number of indexed traces.
func (c *Collector) SetIndexedTraces(n int) {
	if !c.enabled() {
		return
	}
	c.ingest.indexedTraces.Set(float64(n))
}

// RecordAnalysis observes the duration of an analyzer operation.
func (c *Collector) RecordAnalysis(operation string, d time.Duration) {
	if !c.enabled() {
		return
	}
	c.analysis.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetSlowestTrace reports the duration of the slowest known trace.
func (c *Collector) SetSlowestTrace(d time.Duration) {
	if !c.enabled() {
		return
	}
	c.analysis.slowestTrace.Set(d.Seconds())
}
