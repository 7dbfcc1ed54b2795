// Package report logs the slowest traces of the live index on a cron
// schedule.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/tailtrace/pkg/analyzer"
)

// Config controls the periodic report.
type Config struct {
	// Schedule is a standard five-field cron expression. Empty disables the
	// report.
	Schedule string

	// TopN is the number of traces per report. Default: 5
	TopN int
}

// Scheduler runs the slowest-traces report on a schedule.
type Scheduler struct {
	analyzer *analyzer.Analyzer
	config   Config
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool

	// onReport receives every report; used by tests and the run command.
	onReport func([]analyzer.TraceSummary)
}

// NewScheduler creates a report scheduler over a.
func NewScheduler(a *analyzer.Analyzer, cfg Config) *Scheduler {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Scheduler{
		analyzer: a,
		config:   cfg,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "report.scheduler"),
	}
}

// OnReport registers fn to receive each report after it is logged.
func (s *Scheduler) OnReport(fn func([]analyzer.TraceSummary)) {
	s.mu.Lock()
	s.onReport = fn
	s.mu.Unlock()
}

// Start schedules the report. It returns nil without scheduling anything
// when no schedule is configured. The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("report schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("report scheduler already running")
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule report: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("report scheduler started",
		"schedule", s.config.Schedule,
		"top_n", s.config.TopN,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce produces one report immediately.
func (s *Scheduler) RunOnce(ctx context.Context) []analyzer.TraceSummary {
	if ctx.Err() != nil {
		return nil
	}

	summaries := s.analyzer.SummarizeTopSlowest(s.config.TopN)
	if len(summaries) == 0 {
		s.logger.Debug("slowest traces report: no traces indexed")
	}
	for i, ts := range summaries {
		s.logger.Info("slow trace",
			"rank", i+1,
			"trace_id", ts.TraceID,
			"duration_ms", ts.DurationMS,
			"span_count", ts.SpanCount,
			"dominant_span", ts.DominantSpan,
			"dominant_ms", ts.DominantMS,
			"settled", ts.Settled,
		)
	}

	s.mu.Lock()
	fn := s.onReport
	s.mu.Unlock()
	if fn != nil {
		fn(summaries)
	}
	return summaries
}

// Stop stops the scheduler and waits for a running report to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("report scheduler stopped")
}

// IsRunning reports whether a schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled report time, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
