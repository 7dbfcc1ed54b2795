package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/collector"
	"mercator-hq/tailtrace/pkg/config"
	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/spanlog"
	"mercator-hq/tailtrace/pkg/telemetry/health"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
	"mercator-hq/tailtrace/pkg/tracer"
)

func newTestServer(t *testing.T) (*Server, *collector.Collector) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ShutdownTimeout = time.Second

	c := collector.New(spanlog.NewMemoryLog(), nil)
	checker := health.New(time.Second)
	checker.RegisterCheck("span_log", health.PingCheck(c.Log()))

	return New(cfg, Deps{
		Collector: c,
		Analyzer:  analyzer.FromIndex(c.Index()),
		Health:    checker,
		Metrics:   metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Version:   "test",
	}), c
}

func TestServer_TracerToAnalysis(t *testing.T) {
	srv, c := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tr, err := tracer.New(tracer.Config{ServiceName: "service_a", SamplingRate: 1}, tracer.NewHTTPTransmitter(ts.URL, time.Second))
	if err != nil {
		t.Fatalf("tracer.New() failed: %v", err)
	}
	root := tr.StartSpan("handle_api_request", span.Context{}, nil)
	tr.StartSpan("call_service_b", root.Context(), nil).Finish(nil)
	root.Finish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	if got := len(c.GetTrace(root.TraceID())); got != 2 {
		t.Fatalf("collector stored %d spans, want 2", got)
	}

	resp, err := http.Get(ts.URL + "/analysis/trace/" + root.TraceID())
	if err != nil {
		t.Fatalf("GET analysis failed: %v", err)
	}
	defer resp.Body.Close()
	var detail struct {
		Spans []json.RawMessage `json:"spans"`
		Tree  []json.RawMessage `json:"tree"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(detail.Spans) != 2 || len(detail.Tree) != 1 {
		t.Errorf("analysis returned %d spans and %d roots, want 2 and 1", len(detail.Spans), len(detail.Tree))
	}
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/stats", http.StatusOK},
		{http.MethodGet, "/summary/3", http.StatusOK},
		{http.MethodGet, "/trace/unknown", http.StatusOK},
		{http.MethodGet, "/analysis/trace/unknown", http.StatusNotFound},
		{http.MethodPost, "/ingest", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("")))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s missing X-Request-ID", tt.method, tt.path)
		}
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()

	srv.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown()")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
