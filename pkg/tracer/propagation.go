package tracer

import (
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/tailtrace/pkg/span"
)

// Propagation header names. TraceParent is written alongside the X-* headers
// for W3C interop and read only when the X-* headers are absent.
const (
	HeaderTraceID     = "X-Trace-Id"
	HeaderSpanID      = "X-Span-Id"
	HeaderSampled     = "X-Sampled"
	HeaderTraceParent = "traceparent"
)

// Inject writes sc into carrier. Nothing is written for an invalid context.
//
//	req.Header is carried with propagation.HeaderCarrier(req.Header)
//	a plain map uses propagation.MapCarrier(m)
func Inject(sc span.Context, carrier propagation.TextMapCarrier) {
	if !sc.IsValid() {
		return
	}
	carrier.Set(HeaderTraceID, sc.TraceID)
	carrier.Set(HeaderSpanID, sc.SpanID)
	carrier.Set(HeaderSampled, formatSampled(sc.Sampled))
	if tp, ok := FormatTraceParent(sc); ok {
		carrier.Set(HeaderTraceParent, tp)
	}
}

// Extract reads a context from carrier. A missing or malformed carrier yields
// the empty Context, which makes the next StartSpan a new root.
func Extract(carrier propagation.TextMapCarrier) span.Context {
	sc, err := ParseCarrier(carrier)
	if err != nil {
		slog.Default().Debug("ignoring malformed trace context", "component", "tracer", "error", err)
		return span.Context{}
	}
	return sc
}

// ParseCarrier is the strict form of Extract: it reports why a carrier was
// rejected. An absent context is not an error.
func ParseCarrier(carrier propagation.TextMapCarrier) (span.Context, error) {
	if carrier == nil {
		return span.Context{}, nil
	}

	traceID := strings.TrimSpace(carrier.Get(HeaderTraceID))
	spanID := strings.TrimSpace(carrier.Get(HeaderSpanID))

	if traceID == "" && spanID == "" {
		tp := strings.TrimSpace(carrier.Get(HeaderTraceParent))
		if tp == "" {
			return span.Context{}, nil
		}
		sc, ok := ParseTraceParent(tp)
		if !ok {
			return span.Context{}, &span.MalformedCarrierError{Field: HeaderTraceParent, Value: tp}
		}
		return sc, nil
	}

	if !validTraceID(traceID) {
		return span.Context{}, &span.MalformedCarrierError{Field: HeaderTraceID, Value: traceID}
	}
	if !validSpanID(spanID) {
		return span.Context{}, &span.MalformedCarrierError{Field: HeaderSpanID, Value: spanID}
	}

	raw := strings.TrimSpace(carrier.Get(HeaderSampled))
	sampled, ok := parseSampled(raw)
	if !ok {
		return span.Context{}, &span.MalformedCarrierError{Field: HeaderSampled, Value: raw}
	}

	return span.Context{TraceID: strings.ToLower(traceID), SpanID: strings.ToLower(spanID), Sampled: sampled}, nil
}

// PropagateHeaders returns the headers that carry sc.
func PropagateHeaders(sc span.Context) map[string]string {
	h := make(map[string]string, 4)
	Inject(sc, propagation.MapCarrier(h))
	return h
}

// ExtractHeaders reads a context from a header map with case-insensitive keys.
func ExtractHeaders(headers map[string]string) span.Context {
	return Extract(foldCarrier(headers))
}

// foldCarrier is a read-mostly map carrier with case-insensitive lookup.
type foldCarrier map[string]string

func (c foldCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		return v
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (c foldCarrier) Set(key, value string) { c[key] = value }

func (c foldCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func formatSampled(sampled bool) string {
	if sampled {
		return "1"
	}
	return "0"
}

// parseSampled accepts 1/0 and true/false. A missing flag means not sampled.
func parseSampled(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "1", "true":
		return true, true
	case "0", "false", "":
		return false, true
	}
	return false, false
}

// validTraceID accepts hex ids, optionally dash-separated as in UUID form.
func validTraceID(id string) bool {
	compact := strings.ReplaceAll(id, "-", "")
	return len(compact) >= 16 && len(compact) <= 32 && len(id) <= 36 && isHexString(compact)
}

func validSpanID(id string) bool {
	return len(id) >= 8 && len(id) <= 32 && isHexString(id)
}

// FormatTraceParent renders sc as a W3C traceparent value. It reports false
// when the ids do not have W3C widths.
func FormatTraceParent(sc span.Context) (string, bool) {
	if len(sc.TraceID) != 32 || len(sc.SpanID) != 16 || !isHexString(sc.TraceID) || !isHexString(sc.SpanID) {
		return "", false
	}
	flags := "00"
	if sc.Sampled {
		flags = "01"
	}
	return "00-" + strings.ToLower(sc.TraceID) + "-" + strings.ToLower(sc.SpanID) + "-" + flags, true
}

// ValidateTraceParent reports whether traceparent is well formed:
// version-trace_id-parent_id-trace_flags with 2, 32, 16 and 2 hex digits,
// and neither id all zeros.
func ValidateTraceParent(traceparent string) bool {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return false
	}
	if len(parts[0]) != 2 || !isHexString(parts[0]) || parts[0] == "ff" {
		return false
	}
	if len(parts[1]) != 32 || !isHexString(parts[1]) || parts[1] == strings.Repeat("0", 32) {
		return false
	}
	if len(parts[2]) != 16 || !isHexString(parts[2]) || parts[2] == strings.Repeat("0", 16) {
		return false
	}
	return len(parts[3]) == 2 && isHexString(parts[3])
}

// ParseTraceParent converts a traceparent value into a Context. The sampled
// bit is bit 0 of the flags byte.
func ParseTraceParent(traceparent string) (span.Context, bool) {
	if !ValidateTraceParent(traceparent) {
		return span.Context{}, false
	}
	parts := strings.Split(traceparent, "-")
	flags := parts[3]
	sampled := hexValue(flags[1])&0x1 == 1
	return span.Context{
		TraceID: strings.ToLower(parts[1]),
		SpanID:  strings.ToLower(parts[2]),
		Sampled: sampled,
	}, true
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
