package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tailtrace/pkg/config"
)

// IngestMetrics tracks the collector's ingestion path.
type IngestMetrics struct {
	total          *prometheus.CounterVec
	appendDuration *prometheus.HistogramVec
	indexedTraces  prometheus.Gauge
}

// NewIngestMetrics creates and registers collector metrics.
func NewIngestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *IngestMetrics {
	im := &IngestMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "collector",
				Name:      "ingest_total",
				Help:      "Total number of spans received, by result",
			},
			[]string{"result"},
		),
		appendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "collector",
				Name:      "log_append_duration_seconds",
				Help:      "Latency of durable span log appends",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
			},
			[]string{"backend"},
		),
		indexedTraces: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "collector",
				Name:      "indexed_traces",
				Help:      "Number of distinct traces in the in-memory index",
			},
		),
	}

	registry.MustRegister(im.total, im.appendDuration, im.indexedTraces)
	return im
}
