package span

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"
)

// Span is one timed unit of work inside a trace.
//
// A finished Span is immutable: the tracer hands out clones and the collector
// only ever appends records, it never rewrites them.
type Span struct {
	// TraceID groups every span of one end-to-end request (32 lowercase hex).
	TraceID string `json:"trace_id"`

	// SpanID identifies this span within its trace (16 lowercase hex).
	SpanID string `json:"span_id"`

	// ParentSpanID is empty for a root span.
	ParentSpanID string `json:"parent_span_id,omitempty"`

	// Service is the name of the process that produced the span.
	Service string `json:"service"`

	// Operation names the unit of work.
	Operation string `json:"operation"`

	StartTS time.Time `json:"start_ts"`
	EndTS   time.Time `json:"end_ts"`

	// DurationMS mirrors EndTS-StartTS in fractional milliseconds. Decoding
	// derives it from the timestamps; zero means not yet computed.
	DurationMS float64 `json:"duration_ms"`

	// Tags holds scalar annotations (string, bool, number or null).
	Tags map[string]any `json:"tags,omitempty"`

	// Sampled is the effective send decision for this record.
	Sampled bool `json:"sampled"`
}

// Duration returns EndTS-StartTS, clamped at zero.
func (s *Span) Duration() time.Duration {
	d := s.EndTS.Sub(s.StartTS)
	if d < 0 {
		return 0
	}
	return d
}

// IsRoot reports whether the span has no declared parent.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// Name returns "service.operation", the label used in trees and reports.
func (s *Span) Name() string {
	return s.Service + "." + s.Operation
}

// Clone returns a deep copy of the span.
func (s *Span) Clone() *Span {
	if s == nil {
		return nil
	}
	c := *s
	if s.Tags != nil {
		c.Tags = maps.Clone(s.Tags)
	}
	return &c
}

// Validate checks the minimum a collector needs to index a span.
func (s *Span) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil span", ErrInvalidSpan)
	}
	if s.TraceID == "" {
		return fmt.Errorf("%w: trace_id is required", ErrInvalidSpan)
	}
	if s.SpanID == "" {
		return fmt.Errorf("%w: span_id is required", ErrInvalidSpan)
	}
	if s.StartTS.IsZero() || s.EndTS.IsZero() {
		return fmt.Errorf("%w: start_ts and end_ts are required", ErrInvalidSpan)
	}
	if s.EndTS.Before(s.StartTS) {
		return fmt.Errorf("%w: end_ts precedes start_ts", ErrInvalidSpan)
	}
	if !validMillis(s.DurationMS) {
		return fmt.Errorf("%w: duration_ms %v is out of range", ErrInvalidSpan, s.DurationMS)
	}
	if s.DurationMS != 0 && math.Abs(s.DurationMS-DurationMillis(s.Duration())) > durationSlackMS {
		return fmt.Errorf("%w: duration_ms %v does not match end_ts - start_ts", ErrInvalidSpan, s.DurationMS)
	}
	for k, v := range s.Tags {
		if !isScalar(v) {
			return fmt.Errorf("%w: tag %q is not a scalar", ErrInvalidSpan, k)
		}
	}
	return nil
}

// durationSlackMS absorbs float rounding between duration_ms and the
// timestamps it mirrors.
const durationSlackMS = 0.001

// maxMillis keeps a duration in milliseconds convertible to time.Duration.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

func validMillis(ms float64) bool {
	return ms >= 0 && ms <= maxMillis && !math.IsNaN(ms)
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

// wireSpan accepts the *_iso timestamp names emitted by older tracers.
type wireSpan struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	Service      string         `json:"service"`
	Operation    string         `json:"operation"`
	StartTS      *time.Time     `json:"start_ts"`
	EndTS        *time.Time     `json:"end_ts"`
	StartISO     *time.Time     `json:"start_ts_iso"`
	EndISO       *time.Time     `json:"end_ts_iso"`
	DurationMS   *float64       `json:"duration_ms"`
	Tags         map[string]any `json:"tags"`
	Sampled      *bool          `json:"sampled"`
}

// UnmarshalJSON decodes a span record. A null parent_span_id marks a root,
// and a missing sampled field is treated as sampled.
func (s *Span) UnmarshalJSON(data []byte) error {
	var w wireSpan
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*s = Span{
		TraceID:   w.TraceID,
		SpanID:    w.SpanID,
		Service:   w.Service,
		Operation: w.Operation,
		Tags:      w.Tags,
		Sampled:   true,
	}
	if w.ParentSpanID != nil {
		s.ParentSpanID = *w.ParentSpanID
	}
	if w.Sampled != nil {
		s.Sampled = *w.Sampled
	}

	switch {
	case w.StartTS != nil:
		s.StartTS = *w.StartTS
	case w.StartISO != nil:
		s.StartTS = *w.StartISO
	}
	switch {
	case w.EndTS != nil:
		s.EndTS = *w.EndTS
	case w.EndISO != nil:
		s.EndTS = *w.EndISO
	}

	s.DurationMS = DurationMillis(s.Duration())
	legacy := s.StartTS.IsZero() || s.EndTS.IsZero()
	if legacy && w.DurationMS != nil && validMillis(*w.DurationMS) {
		s.DurationMS = *w.DurationMS
	}
	return nil
}

// DurationMillis converts d into fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Marshal encodes a span as a single JSON line without the trailing newline.
// HTML characters are written literally rather than as \u escapes.
func Marshal(s *Span) ([]byte, error) {
	if s == nil {
		return nil, errors.New("marshal span: nil span")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal decodes one JSON span record.
func Unmarshal(data []byte) (*Span, error) {
	var s Span
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal span: %w", err)
	}
	return &s, nil
}
