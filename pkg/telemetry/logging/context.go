package logging

import (
	"context"
	"log/slog"
)

type contextKey string

// Context keys whose values are copied onto every record logged with that
// context. The key doubles as the log attribute name.
const (
	RequestIDKey contextKey = "request_id"
	TraceIDKey   contextKey = "trace_id"
	SpanIDKey    contextKey = "span_id"
)

var contextFields = [...]contextKey{RequestIDKey, TraceIDKey, SpanIDKey}

func fromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithRequestID tags ctx with the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID returns the request id of ctx, or "".
func GetRequestID(ctx context.Context) string { return fromContext(ctx, RequestIDKey) }

// WithTraceID tags ctx with the trace the current work belongs to.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id of ctx, or "".
func GetTraceID(ctx context.Context) string { return fromContext(ctx, TraceIDKey) }

// WithSpanID tags ctx with the active span.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// GetSpanID returns the span id of ctx, or "".
func GetSpanID(ctx context.Context) string { return fromContext(ctx, SpanIDKey) }

// contextHandler copies contextFields onto each record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextFields {
		if v := fromContext(ctx, key); v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
