package tracer

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/telemetry/logging"
)

// Tag keys recorded by the instrumentation helpers.
const (
	TagHTTPMethod = "http_method"
	TagHTTPStatus = "http_status"
	TagTargetURL  = "target_url"
	TagHTTPPath   = "http_path"
	TagSuccess    = "success"
	TagError      = "error"
)

// parentOf prefers an explicit parent and falls back to the span in ctx.
func parentOf(ctx context.Context, parent span.Context) span.Context {
	if parent.IsValid() {
		return parent
	}
	if as := SpanFromContext(ctx); as != nil {
		return as.Context()
	}
	return span.Context{}
}

// InstrumentHTTPCall performs req inside a child span named operation. The
// child's context is injected into the request headers so the callee can
// continue the trace. Transport errors are recorded on the span and returned
// unchanged.
func (t *Tracer) InstrumentHTTPCall(ctx context.Context, client *http.Client, req *http.Request, operation string, parent span.Context) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	child := t.StartSpan(operation, parentOf(ctx, parent), map[string]any{
		TagHTTPMethod: req.Method,
		TagTargetURL:  req.URL.String(),
	})
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	Inject(child.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req.WithContext(ContextWithSpan(req.Context(), child)))
	if err != nil {
		child.Finish(map[string]any{
			TagError:   err.Error(),
			TagSuccess: false,
		})
		return nil, err
	}

	child.Finish(map[string]any{
		TagHTTPStatus: resp.StatusCode,
		TagSuccess:    resp.StatusCode < 400,
	})
	return resp, nil
}

// InstrumentAsync wraps fn so that each invocation runs inside a child span
// named operation. The child is available to fn through SpanFromContext.
// fn's result and error pass through unchanged.
func InstrumentAsync[T any](t *Tracer, operation string, parent span.Context, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		child := t.StartSpan(operation, parentOf(ctx, parent), nil)

		result, err := fn(ContextWithSpan(ctx, child))
		if err != nil {
			child.Finish(map[string]any{
				TagError:   err.Error(),
				TagSuccess: false,
			})
			return result, err
		}

		child.Finish(map[string]any{TagSuccess: true})
		return result, nil
	}
}

// Run is InstrumentAsync for calls without a result value.
func (t *Tracer) Run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	wrapped := InstrumentAsync(t, operation, span.Context{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	_, err := wrapped(ctx)
	return err
}

// HTTPMiddleware continues the caller's trace (or starts one) for every
// inbound request. The active span is placed in the request context together
// with trace_id/span_id log fields.
func HTTPMiddleware(t *Tracer, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parent := Extract(propagation.HeaderCarrier(r.Header))
			as := t.StartSpan(operation, parent, map[string]any{
				TagHTTPMethod: r.Method,
				TagHTTPPath:   r.URL.Path,
			})

			ctx := ContextWithSpan(r.Context(), as)
			ctx = logging.WithTraceID(ctx, as.TraceID())
			ctx = logging.WithSpanID(ctx, as.SpanID())

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				as.Finish(map[string]any{
					TagHTTPStatus: sw.status,
					TagSuccess:    sw.status < 500,
				})
			}()

			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
