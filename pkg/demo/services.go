package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/tracer"
)

// Service names recorded on demo spans.
const (
	ServiceA       = "service_a"
	ServiceAWorker = "service_a_worker"
	ServiceB       = "service_b"
	ServiceC       = "service_c"
)

// Operation names recorded on demo spans.
const (
	OpHandleRequest  = "handle_api_request"
	OpCallServiceB   = "call_service_b"
	OpExternalAPI    = "call_external_api"
	OpBackgroundTask = "worker_background_task"
	OpBusinessLogic  = "process_business_logic"
	OpCallServiceC   = "call_service_c"
	OpDBQuery        = "db_query"
)

const (
	dbPoolSize        = 10
	workerProbability = 0.3
	slowQueryChance   = 0.01
)

// Rand is the random source the services draw latencies from.
type Rand interface {
	Float64() float64
}

// lockedRand makes a *rand.Rand safe for concurrent handlers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed uint64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// between returns a duration uniformly drawn from [lo, hi).
func between(rng Rand, lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rng.Float64()*float64(hi-lo))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "OK")
}

// postWork calls a downstream /work endpoint inside a child span.
func postWork(ctx context.Context, t *tracer.Tracer, client *http.Client, baseURL, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/work", strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.InstrumentHTTPCall(ctx, client, req, operation, span.Context{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s responded %d", baseURL, resp.StatusCode)
	}
	return nil
}

// serviceA is the public entry point.
type serviceA struct {
	tracer   *tracer.Tracer
	worker   *tracer.Tracer
	client   *http.Client
	serviceB string
	rng      Rand
	stats    *serviceStats
	logger   *slog.Logger
}

func (s *serviceA) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /work", s.handleWork)
	mux.HandleFunc("GET /metrics", s.stats.handler(nil))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func (s *serviceA) handleWork(w http.ResponseWriter, r *http.Request) {
	start := s.stats.begin()
	defer s.stats.end(start)

	root, ctx := s.tracer.StartSpanFromContext(r.Context(), OpHandleRequest, map[string]any{
		tracer.TagHTTPMethod: r.Method,
		tracer.TagHTTPPath:   r.URL.Path,
	})

	if err := s.serve(ctx, root); err != nil {
		s.logger.Warn("request failed", "trace_id", root.TraceID(), "error", err)
		root.Finish(map[string]any{tracer.TagError: err.Error(), tracer.TagSuccess: false})
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "Service failure",
			"trace_id": root.TraceID(),
		})
		return
	}

	root.Finish(map[string]any{tracer.TagSuccess: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "complete",
		"trace_id": root.TraceID(),
	})
}

func (s *serviceA) serve(ctx context.Context, root *tracer.ActiveSpan) error {
	if err := sleep(ctx, 5*time.Millisecond); err != nil {
		return err
	}

	if err := postWork(ctx, s.tracer, s.client, s.serviceB, OpCallServiceB); err != nil {
		return err
	}

	external := tracer.InstrumentAsync(s.tracer, OpExternalAPI, root.Context(), func(ctx context.Context) (string, error) {
		return "ok", sleep(ctx, 20*time.Millisecond)
	})
	if _, err := external(ctx); err != nil {
		return err
	}

	if s.rng.Float64() < workerProbability {
		task := s.worker.StartSpan(OpBackgroundTask, root.Context(), nil)
		err := sleep(ctx, 50*time.Millisecond)
		task.Finish(map[string]any{"worker_result": "processed"})
		if err != nil {
			return err
		}
	}
	return nil
}

// serviceB holds the business logic.
type serviceB struct {
	tracer   *tracer.Tracer
	client   *http.Client
	serviceC string
	rng      Rand
	stats    *serviceStats
}

func (s *serviceB) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /work", tracer.HTTPMiddleware(s.tracer, OpBusinessLogic)(http.HandlerFunc(s.handleWork)))
	mux.HandleFunc("GET /metrics", s.stats.handler(nil))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func (s *serviceB) handleWork(w http.ResponseWriter, r *http.Request) {
	start := s.stats.begin()
	defer s.stats.end(start)

	ctx := r.Context()
	as := tracer.SpanFromContext(ctx)

	work := between(s.rng, 10*time.Millisecond, 40*time.Millisecond)
	err := sleep(ctx, work)
	if err == nil {
		err = postWork(ctx, s.tracer, s.client, s.serviceC, OpCallServiceC)
	}
	as.SetTag("processing_time_ms", time.Since(start).Milliseconds())

	if err != nil {
		as.SetTag(tracer.TagError, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Downstream failure"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processed"})
}

// serviceC fronts a simulated database with a fixed connection pool.
type serviceC struct {
	tracer *tracer.Tracer
	rng    Rand
	stats  *serviceStats

	pool   chan struct{}
	queued atomic.Int64
}

func (s *serviceC) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /work", s.handleWork)
	mux.HandleFunc("GET /metrics", s.stats.handler(func(m *ServiceMetrics) {
		m.DBPool = &PoolMetrics{
			Size:              cap(s.pool),
			ActiveConnections: len(s.pool),
			QueuedRequests:    s.queued.Load(),
		}
	}))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func (s *serviceC) acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	s.queued.Add(1)
	defer s.queued.Add(-1)
	select {
	case s.pool <- struct{}{}:
		return time.Since(start), nil
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	}
}

func (s *serviceC) release() { <-s.pool }

func (s *serviceC) handleWork(w http.ResponseWriter, r *http.Request) {
	start := s.stats.begin()
	defer s.stats.end(start)

	ctx := r.Context()
	parent := tracer.Extract(propagation.HeaderCarrier(r.Header))

	queueTime, err := s.acquire(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "connection pool exhausted"})
		return
	}
	defer s.release()

	query := s.tracer.StartSpan(OpDBQuery, parent, map[string]any{
		"db_operation":  "SELECT",
		"db_table":      "users",
		"queue_time_ms": queueTime.Milliseconds(),
	})

	dbStart := time.Now()
	work := between(s.rng, 5*time.Millisecond, 55*time.Millisecond)
	if s.rng.Float64() < slowQueryChance {
		work += 200 * time.Millisecond
	}
	err = sleep(ctx, work)

	tags := map[string]any{
		"db_time_ms":    time.Since(dbStart).Milliseconds(),
		"queue_time_ms": queueTime.Milliseconds(),
	}
	if err != nil {
		tags[tracer.TagError] = err.Error()
		query.Finish(tags)
		if errors.Is(err, context.Canceled) {
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	tags["rows_returned"] = 42
	query.Finish(tags)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rows": 42})
}
