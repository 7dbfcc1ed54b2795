package demo

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// windowSize is the number of recent latencies kept per service.
const windowSize = 1000

// latencyWindow keeps the most recent request latencies in milliseconds.
type latencyWindow struct {
	mu     sync.Mutex
	values []float64
	next   int
	full   bool
}

func newLatencyWindow() *latencyWindow {
	return &latencyWindow{values: make([]float64, windowSize)}
}

func (w *latencyWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values[w.next] = float64(d) / float64(time.Millisecond)
	w.next = (w.next + 1) % len(w.values)
	if w.next == 0 {
		w.full = true
	}
}

// Percentiles are latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

func (w *latencyWindow) percentiles() Percentiles {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.values)
	}
	sorted := make([]float64, n)
	copy(sorted, w.values[:n])
	w.mu.Unlock()

	if n == 0 {
		return Percentiles{}
	}
	sort.Float64s(sorted)
	return Percentiles{
		P50: stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95: stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99: stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

// serviceStats backs a service's /metrics endpoint.
type serviceStats struct {
	requests  atomic.Int64
	active    atomic.Int64
	latencies *latencyWindow
}

func newServiceStats() *serviceStats {
	return &serviceStats{latencies: newLatencyWindow()}
}

func (s *serviceStats) begin() time.Time {
	s.active.Add(1)
	return time.Now()
}

func (s *serviceStats) end(start time.Time) {
	s.requests.Add(1)
	s.active.Add(-1)
	s.latencies.record(time.Since(start))
}

// ServiceMetrics is the body of a service's /metrics endpoint.
type ServiceMetrics struct {
	RequestCount   int64        `json:"request_count"`
	ActiveRequests int64        `json:"active_requests"`
	Latencies      Percentiles  `json:"latencies"`
	DBPool         *PoolMetrics `json:"db_pool,omitempty"`
}

// PoolMetrics describes service C's connection pool.
type PoolMetrics struct {
	Size              int   `json:"size"`
	ActiveConnections int   `json:"active_connections"`
	QueuedRequests    int64 `json:"queued_requests"`
}

func (s *serviceStats) snapshot() ServiceMetrics {
	return ServiceMetrics{
		RequestCount:   s.requests.Load(),
		ActiveRequests: s.active.Load(),
		Latencies:      s.latencies.percentiles(),
	}
}

func (s *serviceStats) handler(extra func(*ServiceMetrics)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := s.snapshot()
		if extra != nil {
			extra(&m)
		}
		writeJSON(w, http.StatusOK, m)
	}
}
