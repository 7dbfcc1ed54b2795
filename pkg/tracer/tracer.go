// Package tracer creates spans, decides which ones are sent, and propagates
// causal context across process boundaries.
//
// A span is sent when its trace was head-sampled or when the span itself ran
// longer than the tail threshold. Sending happens on a detached goroutine, is
// never retried, and never reports errors to the instrumented code.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

// Tag keys written by Finish.
const (
	// TagHeadSampled records the head decision the span inherited or made.
	TagHeadSampled = "sampling.head"
	// TagTailOverride is set when the span was sent only because it was slow.
	TagTailOverride = "sampling.tail"
)

// Send decisions reported to metrics.
const (
	DecisionHead    = "head"
	DecisionTail    = "tail"
	DecisionDropped = "dropped"
)

// Defaults applied by New.
const (
	DefaultTailThreshold = 100 * time.Millisecond
	DefaultSendTimeout   = 2 * time.Second
)

// Config configures a Tracer.
type Config struct {
	// ServiceName is recorded on every span.
	ServiceName string

	// SamplingRate is the head sampling probability in [0, 1].
	SamplingRate float64

	// TailThreshold is the latency above which a span is always sent.
	// Default: 100ms
	TailThreshold time.Duration

	// SendTimeout bounds each transmission.
	// Default: 2s
	SendTimeout time.Duration
}

// Tracer mints spans for one service.
type Tracer struct {
	service     string
	rateBits    atomic.Uint64
	tailNanos   atomic.Int64
	sendTimeout time.Duration

	transmitter Transmitter
	metrics     *metrics.Collector
	logger      *slog.Logger
	now         func() time.Time

	inflight sync.WaitGroup
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithMetrics records span counts and delivery failures.
func WithMetrics(m *metrics.Collector) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithClock overrides the time source used for span timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) { t.now = now }
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

// New creates a tracer. A nil transmitter discards every span.
func New(cfg Config, tx Transmitter, opts ...Option) (*Tracer, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("tracer: service name is required")
	}
	if cfg.TailThreshold == 0 {
		cfg.TailThreshold = DefaultTailThreshold
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if tx == nil {
		tx = NopTransmitter{}
	}

	t := &Tracer{
		service:     cfg.ServiceName,
		sendTimeout: cfg.SendTimeout,
		transmitter: tx,
		logger:      slog.Default().With("component", "tracer", "service", cfg.ServiceName),
		now:         time.Now,
	}
	if err := t.SetSampling(cfg.SamplingRate, cfg.TailThreshold); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ServiceName returns the service recorded on spans.
func (t *Tracer) ServiceName() string { return t.service }

// SamplingRate returns the current head sampling rate.
func (t *Tracer) SamplingRate() float64 {
	return math.Float64frombits(t.rateBits.Load())
}

// TailThreshold returns the current tail threshold.
func (t *Tracer) TailThreshold() time.Duration {
	return time.Duration(t.tailNanos.Load())
}

// SetSampling changes the sampling rate and tail threshold at runtime.
// Spans already started keep the head decision they were created with.
func (t *Tracer) SetSampling(rate float64, tail time.Duration) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("tracer: sampling rate must be in [0, 1], got %g", rate)
	}
	if tail < 0 {
		return fmt.Errorf("tracer: tail threshold must not be negative, got %v", tail)
	}
	t.rateBits.Store(math.Float64bits(rate))
	t.tailNanos.Store(int64(tail))
	return nil
}

// StartSpan begins a span. A valid parent context makes it a child that
// inherits the trace id and the head decision verbatim; otherwise a new trace
// is started and the head decision is made here.
func (t *Tracer) StartSpan(operation string, parent span.Context, tags map[string]any) *ActiveSpan {
	var (
		traceID  string
		parentID string
		sampled  bool
	)
	if parent.IsValid() {
		traceID = parent.TraceID
		parentID = parent.SpanID
		sampled = parent.Sampled
	} else {
		traceID = NewTraceID()
		sampled = t.ShouldSample(traceID, operation, 0)
	}

	s := span.Span{
		TraceID:      traceID,
		SpanID:       NewSpanID(),
		ParentSpanID: parentID,
		Service:      t.service,
		Operation:    operation,
		StartTS:      t.now(),
		Tags:         make(map[string]any, len(tags)+2),
		Sampled:      sampled,
	}
	for k, v := range tags {
		s.Tags[k] = v
	}

	t.metrics.RecordSpanStarted(t.service)
	return &ActiveSpan{tracer: t, span: s}
}

// StartSpanFromContext starts a child of the span carried by ctx (or a root
// if there is none) and returns a context carrying the new span.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operation string, tags map[string]any) (*ActiveSpan, context.Context) {
	var parent span.Context
	if p := SpanFromContext(ctx); p != nil {
		parent = p.Context()
	}
	as := t.StartSpan(operation, parent, tags)
	return as, ContextWithSpan(ctx, as)
}

// Flush waits for in-flight transmissions or until ctx is done.
func (t *Tracer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transmit delivers s in the background with its own deadline, detached
// from any request context.
func (t *Tracer) transmit(s *span.Span) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.sendTimeout)
		defer cancel()

		if err := t.transmitter.Send(ctx, s); err != nil {
			t.metrics.RecordTransmitFailure(t.service)
			t.logger.Debug("span dropped after failed transmission",
				"trace_id", s.TraceID,
				"span_id", s.SpanID,
				"error", err,
			)
		}
	}()
}

// ActiveSpan is a span that has started but not finished.
type ActiveSpan struct {
	tracer *Tracer

	mu       sync.Mutex
	span     span.Span
	finished *span.Span
}

// Context returns the propagable context of this span.
func (a *ActiveSpan) Context() span.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return span.Context{TraceID: a.span.TraceID, SpanID: a.span.SpanID, Sampled: a.span.Sampled}
}

// TraceID returns the span's trace id.
func (a *ActiveSpan) TraceID() string { return a.Context().TraceID }

// SpanID returns the span's id.
func (a *ActiveSpan) SpanID() string { return a.Context().SpanID }

// SetTag sets a tag before the span finishes. It is ignored afterwards.
func (a *ActiveSpan) SetTag(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished == nil {
		a.span.Tags[key] = value
	}
}

// Finish stamps the end time, merges extra tags over the start tags and
// decides whether to send the span. It returns the finished record; calling
// Finish again returns the same record and sends nothing.
func (a *ActiveSpan) Finish(extra map[string]any) *span.Span {
	a.mu.Lock()
	if a.finished != nil {
		out := a.finished.Clone()
		a.mu.Unlock()
		return out
	}

	t := a.tracer
	s := a.span
	s.EndTS = t.now()
	if s.EndTS.Before(s.StartTS) {
		s.EndTS = s.StartTS
	}
	s.DurationMS = span.DurationMillis(s.Duration())
	for k, v := range extra {
		s.Tags[k] = v
	}

	headSampled := s.Sampled
	tail := !headSampled && s.Duration() > t.TailThreshold()
	s.Tags[TagHeadSampled] = headSampled
	if tail {
		s.Tags[TagTailOverride] = true
		s.Sampled = true
	}

	a.finished = &s
	a.mu.Unlock()

	decision := DecisionDropped
	switch {
	case headSampled:
		decision = DecisionHead
	case tail:
		decision = DecisionTail
	}
	t.metrics.RecordSpanFinished(t.service, decision, s.Duration())

	if decision != DecisionDropped {
		t.transmit(s.Clone())
	}
	return s.Clone()
}

type spanKey struct{}

// ContextWithSpan returns a context carrying as.
func ContextWithSpan(ctx context.Context, as *ActiveSpan) context.Context {
	return context.WithValue(ctx, spanKey{}, as)
}

// SpanFromContext returns the active span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	as, _ := ctx.Value(spanKey{}).(*ActiveSpan)
	return as
}
