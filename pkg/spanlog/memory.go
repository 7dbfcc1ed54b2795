package spanlog

import (
	"context"
	"sync"

	"mercator-hq/tailtrace/pkg/span"
)

// MemoryLog keeps records in a slice. Intended for tests.
type MemoryLog struct {
	mu        sync.Mutex
	records   []*span.Span
	appendErr error
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// FailAppends makes every subsequent Append fail with err. Pass nil to heal.
func (m *MemoryLog) FailAppends(err error) {
	m.mu.Lock()
	m.appendErr = err
	m.mu.Unlock()
}

// Append stores a copy of s.
func (m *MemoryLog) Append(ctx context.Context, s *span.Span) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return span.NewDurabilityError(BackendMemory, "append", m.appendErr)
	}
	m.records = append(m.records, s.Clone())
	return nil
}

// Replay delivers copies of all records in append order.
func (m *MemoryLog) Replay(ctx context.Context, fn func(*span.Span) error) (ReplayStats, error) {
	m.mu.Lock()
	records := make([]*span.Span, len(m.records))
	copy(records, m.records)
	m.mu.Unlock()

	var stats ReplayStats
	for _, s := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Records++
		if err := fn(s.Clone()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Len returns the number of stored records.
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Ping reports the injected append failure, if any.
func (m *MemoryLog) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return span.NewDurabilityError(BackendMemory, "ping", m.appendErr)
	}
	return nil
}

// Name returns "memory".
func (m *MemoryLog) Name() string { return BackendMemory }

// Close is a no-op.
func (m *MemoryLog) Close() error { return nil }
