package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a bounded batch of work.
type ProgressReporter interface {
	Start(total int64)
	Update(done, failed int64)
	Finish()
	Error(err error)
}

// SimpleProgress redraws a single status line:
//
//	[████████░░░░░░░░░░░░] 40/100 (2 failed) 18.3 req/s
type SimpleProgress struct {
	mu      sync.Mutex
	writer  io.Writer
	unit    string
	started time.Time

	total  int64
	done   int64
	failed int64
}

// NewProgressReporter creates a reporter writing to w (default os.Stderr).
// unit labels the rate.
func NewProgressReporter(w io.Writer, unit string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	if unit == "" {
		unit = "items"
	}
	return &SimpleProgress{writer: w, unit: unit}
}

// Start resets the reporter for total items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total, p.done, p.failed = total, 0, 0
	p.started = time.Now()
	p.render()
}

// Update records done completed items, failed of which failed. Counts above
// the total are clamped.
func (p *SimpleProgress) Update(done, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(done, p.total)
	p.failed = min(failed, p.done)
	p.render()
}

// Finish renders the final line and ends it.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error prints err on its own line.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

const barWidth = 20

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	filled := int(int64(barWidth) * p.done / p.total)
	var sb strings.Builder
	sb.WriteString("\r[")
	sb.WriteString(strings.Repeat("█", filled))
	sb.WriteString(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(&sb, "] %d/%d", p.done, p.total)
	if p.failed > 0 {
		fmt.Fprintf(&sb, " (%d failed)", p.failed)
	}
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		fmt.Fprintf(&sb, " %.1f %s/s", float64(p.done)/elapsed, p.unit)
	}
	io.WriteString(p.writer, sb.String())
}
