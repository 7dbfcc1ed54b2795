package analyzer

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mercator-hq/tailtrace/pkg/span"
)

// DurationStats describes the distribution of trace durations in
// milliseconds.
type DurationStats struct {
	Count  int     `json:"count"`
	MeanMS float64 `json:"mean_ms"`
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
	P99MS  float64 `json:"p99_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// Stats computes the duration distribution over every indexed trace.
func (a *Analyzer) Stats() DurationStats {
	start := time.Now()
	defer func() { a.metrics.RecordAnalysis("stats", time.Since(start)) }()

	values := make([]float64, 0, a.idx.Len())
	a.idx.Range(func(_ string, spans []*span.Span) bool {
		values = append(values, span.DurationMillis(CalculateTraceDuration(spans)))
		return true
	})
	return Summarize(values)
}

// Summarize computes count, mean, empirical percentiles and max of values.
// values is not modified.
func Summarize(values []float64) DurationStats {
	if len(values) == 0 {
		return DurationStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return DurationStats{
		Count:  len(sorted),
		MeanMS: stat.Mean(sorted, nil),
		P50MS:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95MS:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99MS:  stat.Quantile(0.99, stat.Empirical, sorted, nil),
		MaxMS:  floats.Max(sorted),
	}
}
