package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/collector"
	"mercator-hq/tailtrace/pkg/config"
	"mercator-hq/tailtrace/pkg/server/middleware"
	"mercator-hq/tailtrace/pkg/telemetry/health"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

// Deps are the components served by the server. Collector and Analyzer are
// required; the rest are optional.
type Deps struct {
	Collector *collector.Collector
	Analyzer  *analyzer.Analyzer
	Health    *health.Checker
	Metrics   *metrics.Collector

	// Version is reported on /version.
	Version string
	Commit  string
}

// Server is the collector and analysis HTTP server.
type Server struct {
	config     *config.Config
	deps       Deps
	httpServer *http.Server
	logger     *slog.Logger

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// New creates a server.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		config:       cfg,
		deps:         deps,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and blocks until shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		s.setStopped()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
	}
	return s.shutdown()
}

// Shutdown asks a running server to stop. Start returns once it has.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

func (s *Server) shutdown() error {
	s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		s.logger.Error("error during server shutdown", "error", shutdownErr)
		err = fmt.Errorf("server shutdown error: %w", shutdownErr)
	}

	s.setStopped()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.deps.Collector.Register(mux, s.config.Server.MaxBodyBytes)
	s.deps.Analyzer.Register(mux, s.config.Analyzer.TopN)

	hc := s.config.Telemetry.Health
	if s.deps.Health != nil && hc.Enabled {
		s.deps.Health.Register(mux, hc.LivenessPath, hc.ReadinessPath)
	}

	mc := s.config.Telemetry.Metrics
	if s.deps.Metrics != nil && mc.Enabled {
		mux.Handle(mc.Path, s.deps.Metrics.Handler())
	}

	mux.Handle("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, ""))

	var handler http.Handler = mux
	handler = middleware.BodyLimitMiddleware(s.config.Server.MaxBodyBytes)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}
