package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tailtrace/pkg/config"
)

// AnalysisMetrics tracks analyzer work.
type AnalysisMetrics struct {
	duration     *prometheus.HistogramVec
	slowestTrace prometheus.Gauge
}

// NewAnalysisMetrics creates and registers analyzer metrics.
func NewAnalysisMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AnalysisMetrics {
	am := &AnalysisMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "analyzer",
				Name:      "operation_duration_seconds",
				Help:      "Duration of analyzer operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		slowestTrace: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "analyzer",
				Name:      "slowest_trace_seconds",
				Help:      "End-to-end duration of the slowest indexed trace",
			},
		),
	}

	registry.MustRegister(am.duration, am.slowestTrace)
	return am
}
