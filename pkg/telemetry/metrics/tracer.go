package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tailtrace/pkg/config"
)

// TracerMetrics tracks span creation and delivery.
//
// Metrics:
//   - tailtrace_tracer_spans_started_total{service}
//   - tailtrace_tracer_spans_finished_total{service,decision}
//   - tailtrace_tracer_span_duration_seconds{service}
//   - tailtrace_tracer_transmit_failures_total{service}
type TracerMetrics struct {
	started          *prometheus.CounterVec
	finished         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	transmitFailures *prometheus.CounterVec
}

// NewTracerMetrics creates and registers tracer metrics.
func NewTracerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TracerMetrics {
	tm := &TracerMetrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "tracer",
				Name:      "spans_started_total",
				Help:      "Total number of spans started",
			},
			[]string{"service"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "tracer",
				Name:      "spans_finished_total",
				Help:      "Total number of spans finished, by send decision",
			},
			[]string{"service", "decision"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "tracer",
				Name:      "span_duration_seconds",
				Help:      "Duration of finished spans in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"service"},
		),
		transmitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "tracer",
				Name:      "transmit_failures_total",
				Help:      "Total number of spans that could not be delivered to the collector",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(tm.started, tm.finished, tm.duration, tm.transmitFailures)
	return tm
}
