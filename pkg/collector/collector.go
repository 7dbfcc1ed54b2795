// Package collector accepts finished spans, persists them to an append-only
// span log and indexes them by trace id.
//
// A span is indexed only after its record is durable. Ingest never rewrites
// or deduplicates: a span delivered twice is stored twice.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tailtrace/pkg/index"
	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/spanlog"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

// IngestResult reports what happened to an ingested span.
type IngestResult string

const (
	ResultStored  IngestResult = "stored"
	ResultDropped IngestResult = "dropped"
	ResultInvalid IngestResult = "invalid"
	ResultFailed  IngestResult = "failed"
)

// Collector owns the durable span log and the live index.
type Collector struct {
	log     spanlog.Log
	idx     *index.Index
	metrics *metrics.Collector
	logger  *slog.Logger

	// order is held across the log append and the index append so the index
	// sees spans in the same order the log does.
	order sync.Mutex
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics records ingest results and append latency.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New creates a collector over log and idx. A nil idx gets a default index.
func New(log spanlog.Log, idx *index.Index, opts ...Option) *Collector {
	if idx == nil {
		idx = index.New(0)
	}
	c := &Collector{
		log:    log,
		idx:    idx,
		logger: slog.Default().With("component", "collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index returns the live index.
func (c *Collector) Index() *index.Index { return c.idx }

// Log returns the durable span log.
func (c *Collector) Log() spanlog.Log { return c.log }

// Ingest validates s, appends it to the span log and then indexes it.
//
// Unsampled spans are acknowledged with ResultDropped and never stored. The
// stored record's duration_ms is always end_ts - start_ts. A record the log
// refuses as too large is ResultInvalid. If the append fails for any other
// reason the span is not indexed and a *span.DurabilityError is returned.
func (c *Collector) Ingest(ctx context.Context, s *span.Span) (IngestResult, error) {
	if err := s.Validate(); err != nil {
		c.metrics.RecordIngest(string(ResultInvalid))
		return ResultInvalid, err
	}

	if !s.Sampled {
		c.metrics.RecordIngest(string(ResultDropped))
		return ResultDropped, nil
	}

	rec := s.Clone()
	rec.DurationMS = span.DurationMillis(rec.Duration())

	c.order.Lock()
	defer c.order.Unlock()

	start := time.Now()
	err := c.log.Append(ctx, rec)
	c.metrics.RecordAppend(c.log.Name(), time.Since(start))
	if errors.Is(err, span.ErrInvalidSpan) {
		c.metrics.RecordIngest(string(ResultInvalid))
		return ResultInvalid, err
	}
	if err != nil {
		c.metrics.RecordIngest(string(ResultFailed))
		c.logger.Error("span append failed",
			"trace_id", s.TraceID,
			"span_id", s.SpanID,
			"backend", c.log.Name(),
			"error", err,
		)
		var de *span.DurabilityError
		if errors.As(err, &de) {
			return ResultFailed, err
		}
		return ResultFailed, span.NewDurabilityError(c.log.Name(), "append", err)
	}

	c.idx.Append(rec)
	c.metrics.RecordIngest(string(ResultStored))
	c.metrics.SetIndexedTraces(c.idx.Len())

	c.logger.Debug("span stored", "trace_id", s.TraceID, "span_id", s.SpanID, "name", s.Name())
	return ResultStored, nil
}

// Send implements the tracer's Transmitter interface for in-process use.
func (c *Collector) Send(ctx context.Context, s *span.Span) error {
	_, err := c.Ingest(ctx, s)
	return err
}

// GetTrace returns every stored span of traceID in arrival order. An unknown
// id yields an empty slice.
func (c *Collector) GetTrace(traceID string) []*span.Span {
	return c.idx.Get(traceID)
}

// Recover rebuilds the index from the span log. Records are indexed in log
// order; unsampled records are skipped.
func (c *Collector) Recover(ctx context.Context) (spanlog.ReplayStats, error) {
	c.order.Lock()
	defer c.order.Unlock()

	c.idx.Reset()

	stats, err := c.log.Replay(ctx, func(s *span.Span) error {
		if s.Sampled {
			c.idx.Append(s)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("recover index from %s log: %w", c.log.Name(), err)
	}

	c.metrics.SetIndexedTraces(c.idx.Len())
	c.logger.Info("index recovered",
		"backend", c.log.Name(),
		"records", stats.Records,
		"skipped", stats.Skipped,
		"traces", c.idx.Len(),
	)
	return stats, nil
}

// Close closes the span log.
func (c *Collector) Close() error {
	return c.log.Close()
}
