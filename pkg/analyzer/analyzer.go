package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"mercator-hq/tailtrace/pkg/index"
	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/spanlog"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

// DefaultSettleAfter is the quiet period after which a trace is reported as
// settled.
const DefaultSettleAfter = 30 * time.Second

// Analyzer answers latency questions over an index of spans.
type Analyzer struct {
	idx         *index.Index
	settleAfter time.Duration
	now         func() time.Time
	metrics     *metrics.Collector
	logger      *slog.Logger

	// offline is set once the index was filled from a log, where arrival
	// times are unknown and settling is judged from span end times.
	offline bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSettleAfter sets the quiet period used for TraceSummary.Settled.
func WithSettleAfter(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.settleAfter = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithMetrics records analysis latency.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an analyzer over its own empty index.
func New(opts ...Option) *Analyzer {
	return FromIndex(index.New(0), opts...)
}

// FromIndex creates an analyzer over an existing index, typically the
// collector's live one.
func FromIndex(idx *index.Index, opts ...Option) *Analyzer {
	a := &Analyzer{
		idx:         idx,
		settleAfter: DefaultSettleAfter,
		now:         time.Now,
		logger:      slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Index returns the index being analyzed.
func (a *Analyzer) Index() *index.Index { return a.idx }

// Load replaces the index contents with every record in log.
func (a *Analyzer) Load(ctx context.Context, log spanlog.Log) (spanlog.ReplayStats, error) {
	a.idx.Reset()
	a.offline = true
	stats, err := log.Replay(ctx, func(s *span.Span) error {
		a.idx.Append(s)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("load spans from %s log: %w", log.Name(), err)
	}
	a.logLoaded(log.Name(), stats)
	return stats, nil
}

// LoadFile replaces the index contents with the records of an NDJSON file.
// A missing file loads nothing.
func (a *Analyzer) LoadFile(ctx context.Context, path string) (spanlog.ReplayStats, error) {
	a.idx.Reset()
	a.offline = true
	stats, err := spanlog.ReplayFile(ctx, path, func(s *span.Span) error {
		a.idx.Append(s)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("load spans from %s: %w", path, err)
	}
	a.logLoaded(path, stats)
	return stats, nil
}

func (a *Analyzer) logLoaded(source string, stats spanlog.ReplayStats) {
	a.logger.Info("spans loaded",
		"source", source,
		"records", stats.Records,
		"skipped", stats.Skipped,
		"traces", a.idx.Len(),
	)
}

// TraceSummary is the ranked view of one trace.
type TraceSummary struct {
	TraceID    string        `json:"trace_id"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
	SpanCount  int           `json:"span_count"`
	RootCount  int           `json:"root_count"`

	// Dominant is the longest span of the trace.
	Dominant     *span.Span `json:"-"`
	DominantSpan string     `json:"dominant_span"`
	DominantMS   float64    `json:"dominant_duration_ms"`

	// Settled reports that no span arrived for the settle period. It is
	// advisory; a settled trace still changes if more spans arrive.
	Settled bool `json:"settled"`
}

func (a *Analyzer) summarize(traceID string, spans []*span.Span, now time.Time) TraceSummary {
	d := CalculateTraceDuration(spans)
	ts := TraceSummary{
		TraceID:    traceID,
		Duration:   d,
		DurationMS: span.DurationMillis(d),
		SpanCount:  len(spans),
		RootCount:  len(BuildSpanTree(spans)),
		Settled:    now.Sub(a.lastSeen(traceID, spans)) >= a.settleAfter,
	}
	if dom := DominantSpan(spans); dom != nil {
		ts.Dominant = dom
		ts.DominantSpan = dom.Name()
		ts.DominantMS = span.DurationMillis(spanDuration(dom))
	}
	return ts
}

func (a *Analyzer) lastSeen(traceID string, spans []*span.Span) time.Time {
	if !a.offline {
		if t, ok := a.idx.LastSeen(traceID); ok {
			return t
		}
	}
	var latest time.Time
	for _, s := range spans {
		if s.EndTS.After(latest) {
			latest = s.EndTS
		}
	}
	return latest
}

// SummarizeTopSlowest ranks traces by duration, longest first, with ties
// broken by trace id. n <= 0 returns every trace.
func (a *Analyzer) SummarizeTopSlowest(n int) []TraceSummary {
	start := time.Now()
	now := a.now()

	summaries := make([]TraceSummary, 0, a.idx.Len())
	a.idx.Range(func(traceID string, spans []*span.Span) bool {
		summaries = append(summaries, a.summarize(traceID, spans, now))
		return true
	})

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Duration != summaries[j].Duration {
			return summaries[i].Duration > summaries[j].Duration
		}
		return summaries[i].TraceID < summaries[j].TraceID
	})

	if len(summaries) > 0 {
		a.metrics.SetSlowestTrace(summaries[0].Duration)
	}
	if n > 0 && n < len(summaries) {
		summaries = summaries[:n]
	}

	a.metrics.RecordAnalysis("summarize", time.Since(start))
	return summaries
}

// TraceDetail is the full reconstruction of one trace.
type TraceDetail struct {
	TraceID    string        `json:"trace_id"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
	Spans      []*span.Span  `json:"spans"`
	Tree       []*Node       `json:"tree"`
	Dominant   *span.Span    `json:"dominant,omitempty"`
}

// Trace reconstructs one trace. It reports false for an unknown id.
func (a *Analyzer) Trace(traceID string) (TraceDetail, bool) {
	start := time.Now()
	defer func() { a.metrics.RecordAnalysis("trace", time.Since(start)) }()

	spans := a.idx.Get(traceID)
	if len(spans) == 0 {
		return TraceDetail{}, false
	}

	d := CalculateTraceDuration(spans)
	return TraceDetail{
		TraceID:    traceID,
		Duration:   d,
		DurationMS: span.DurationMillis(d),
		Spans:      spans,
		Tree:       BuildSpanTree(spans),
		Dominant:   DominantSpan(spans),
	}, true
}
