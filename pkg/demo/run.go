package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
	"mercator-hq/tailtrace/pkg/tracer"
)

// Defaults applied by Run.
const (
	DefaultRequests    = 100
	DefaultConcurrency = 10
)

// Config configures the demo cluster and its load.
type Config struct {
	// Requests is the number of GET /work calls sent to service A.
	// Default: 100
	Requests int

	// Concurrency bounds the number of in-flight requests.
	// Default: 10
	Concurrency int

	// SamplingRate and TailThreshold configure every service's tracer.
	SamplingRate  float64
	TailThreshold time.Duration

	// Transmitter receives every span the services send. Nil discards them.
	Transmitter tracer.Transmitter

	// Metrics records tracer metrics for each service.
	Metrics *metrics.Collector

	// Rand drives simulated latencies. Nil uses a PCG source seeded with
	// Seed, or the clock when Seed is zero.
	Rand Rand
	Seed uint64

	// Progress is called after each completed request with the number of
	// requests done so far and how many of them failed.
	Progress func(done, failed int)
}

func (c *Config) setDefaults() {
	if c.Requests <= 0 {
		c.Requests = DefaultRequests
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Rand == nil {
		seed := c.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		c.Rand = newLockedRand(seed)
	}
}

// Cluster is the three demo services listening on loopback.
type Cluster struct {
	// URLs of each service, e.g. "http://127.0.0.1:41234".
	ServiceA string
	ServiceB string
	ServiceC string

	tracers []*tracer.Tracer
	servers []*http.Server
	client  *http.Client
}

// StartCluster starts services C, B and A on ephemeral loopback ports.
func StartCluster(cfg Config) (*Cluster, error) {
	cfg.setDefaults()

	c := &Cluster{client: &http.Client{Timeout: 30 * time.Second}}

	newTracer := func(service string) (*tracer.Tracer, error) {
		t, err := tracer.New(tracer.Config{
			ServiceName:   service,
			SamplingRate:  cfg.SamplingRate,
			TailThreshold: cfg.TailThreshold,
		}, cfg.Transmitter, tracer.WithMetrics(cfg.Metrics))
		if err != nil {
			return nil, err
		}
		c.tracers = append(c.tracers, t)
		return t, nil
	}

	tc, err := newTracer(ServiceC)
	if err != nil {
		return nil, err
	}
	svcC := &serviceC{
		tracer: tc,
		rng:    cfg.Rand,
		stats:  newServiceStats(),
		pool:   make(chan struct{}, dbPoolSize),
	}
	if c.ServiceC, err = c.serve(svcC.routes()); err != nil {
		return nil, err
	}

	tb, err := newTracer(ServiceB)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	svcB := &serviceB{
		tracer:   tb,
		client:   c.client,
		serviceC: c.ServiceC,
		rng:      cfg.Rand,
		stats:    newServiceStats(),
	}
	if c.ServiceB, err = c.serve(svcB.routes()); err != nil {
		c.Close(context.Background())
		return nil, err
	}

	ta, err := newTracer(ServiceA)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	tw, err := newTracer(ServiceAWorker)
	if err != nil {
		c.Close(context.Background())
		return nil, err
	}
	svcA := &serviceA{
		tracer:   ta,
		worker:   tw,
		client:   c.client,
		serviceB: c.ServiceB,
		rng:      cfg.Rand,
		stats:    newServiceStats(),
		logger:   slog.Default().With("component", "demo", "service", ServiceA),
	}
	if c.ServiceA, err = c.serve(svcA.routes()); err != nil {
		c.Close(context.Background())
		return nil, err
	}

	return c, nil
}

func (c *Cluster) serve(h http.Handler) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("demo: listen: %w", err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	c.servers = append(c.servers, srv)
	go srv.Serve(ln)
	return "http://" + ln.Addr().String(), nil
}

// Call sends one GET /work to service A and returns the trace id it reports.
func (c *Cluster) Call(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ServiceA+"/work", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		TraceID string `json:"trace_id"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("demo: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return body.TraceID, fmt.Errorf("demo: service A responded %d: %s", resp.StatusCode, body.Error)
	}
	return body.TraceID, nil
}

// Flush waits for every tracer's in-flight spans.
func (c *Cluster) Flush(ctx context.Context) error {
	var errs []error
	for _, t := range c.tracers {
		if err := t.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", t.ServiceName(), err))
		}
	}
	return errors.Join(errs...)
}

// Close shuts the services down.
func (c *Cluster) Close(ctx context.Context) error {
	var errs []error
	for _, srv := range c.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Result summarizes a load run.
type Result struct {
	Requests int                    `json:"requests"`
	Failures int                    `json:"failures"`
	TraceIDs []string               `json:"trace_ids"`
	Latency  analyzer.DurationStats `json:"latency"`
	Elapsed  time.Duration          `json:"elapsed"`
}

// Run starts the cluster, sends cfg.Requests calls to service A with at most
// cfg.Concurrency in flight, flushes the tracers and shuts down.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg.setDefaults()
	logger := slog.Default().With("component", "demo")

	cluster, err := StartCluster(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cluster.Close(shutdownCtx)
	}()

	logger.Info("demo cluster started",
		"service_a", cluster.ServiceA,
		"service_b", cluster.ServiceB,
		"service_c", cluster.ServiceC,
		"requests", cfg.Requests,
		"concurrency", cfg.Concurrency,
	)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		result    = &Result{Requests: cfg.Requests}
		latencies = make([]float64, 0, cfg.Requests)
		done      int
	)
	sem := make(chan struct{}, cfg.Concurrency)
	start := time.Now()

	for i := 0; i < cfg.Requests; i++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			callStart := time.Now()
			traceID, err := cluster.Call(ctx)
			elapsed := time.Since(callStart)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				result.Failures++
				logger.Debug("demo request failed", "trace_id", traceID, "error", err)
			} else {
				result.TraceIDs = append(result.TraceIDs, traceID)
				latencies = append(latencies, float64(elapsed)/float64(time.Millisecond))
			}
			if cfg.Progress != nil {
				cfg.Progress(done, result.Failures)
			}
		}()
	}
	wg.Wait()
	result.Elapsed = time.Since(start)
	result.Latency = analyzer.Summarize(latencies)

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cluster.Flush(flushCtx); err != nil {
		return result, err
	}

	logger.Info("demo load finished",
		"requests", result.Requests,
		"failures", result.Failures,
		"elapsed", result.Elapsed,
		"p99_ms", result.Latency.P99MS,
	)
	return result, nil
}
