// Package index holds spans grouped by trace_id in arrival order.
//
// The index is sharded by trace_id so concurrent appends for different traces
// never contend on one lock, while appends for the same trace are serialized by
// their shard and are never lost.
package index

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"mercator-hq/tailtrace/pkg/span"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 64

type shard struct {
	mu       sync.RWMutex
	traces   map[string][]*span.Span
	lastSeen map[string]time.Time
}

// Index maps trace_id to the spans received for it.
type Index struct {
	shards []*shard
	mask   uint32
	now    func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithClock overrides the clock used for last-seen bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		idx.now = now
	}
}

// New creates an empty index. The shard count is rounded up to a power of two.
func New(shards int, opts ...Option) *Index {
	if shards <= 0 {
		shards = DefaultShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}

	idx := &Index{
		shards: make([]*shard, n),
		mask:   uint32(n - 1),
		now:    time.Now,
	}
	for i := range idx.shards {
		idx.shards[i] = &shard{
			traces:   make(map[string][]*span.Span),
			lastSeen: make(map[string]time.Time),
		}
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) shardFor(traceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(traceID))
	return idx.shards[h.Sum32()&idx.mask]
}

// Append adds s to the end of its trace's list.
func (idx *Index) Append(s *span.Span) {
	sh := idx.shardFor(s.TraceID)
	sh.mu.Lock()
	sh.traces[s.TraceID] = append(sh.traces[s.TraceID], s)
	sh.lastSeen[s.TraceID] = idx.now()
	sh.mu.Unlock()
}

// Get returns a copy of the spans for traceID in arrival order.
// An unknown trace yields an empty, non-nil slice.
func (idx *Index) Get(traceID string) []*span.Span {
	sh := idx.shardFor(traceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	spans := sh.traces[traceID]
	out := make([]*span.Span, len(spans))
	copy(out, spans)
	return out
}

// LastSeen returns when the most recent span of traceID arrived.
func (idx *Index) LastSeen(traceID string) (time.Time, bool) {
	sh := idx.shardFor(traceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	t, ok := sh.lastSeen[traceID]
	return t, ok
}

// TraceIDs returns every indexed trace_id in lexical order.
func (idx *Index) TraceIDs() []string {
	var ids []string
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for id := range sh.traces {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// Range calls fn with a snapshot of each trace until fn returns false.
// Shards are snapshotted one at a time, so fn may call back into the index.
func (idx *Index) Range(fn func(traceID string, spans []*span.Span) bool) {
	for _, sh := range idx.shards {
		sh.mu.RLock()
		snapshot := make(map[string][]*span.Span, len(sh.traces))
		for id, spans := range sh.traces {
			cp := make([]*span.Span, len(spans))
			copy(cp, spans)
			snapshot[id] = cp
		}
		sh.mu.RUnlock()

		for id, spans := range snapshot {
			if !fn(id, spans) {
				return
			}
		}
	}
}

// Len returns the number of distinct traces.
func (idx *Index) Len() int {
	n := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		n += len(sh.traces)
		sh.mu.RUnlock()
	}
	return n
}

// SpanCount returns the number of indexed span records, duplicates included.
func (idx *Index) SpanCount() int {
	n := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for _, spans := range sh.traces {
			n += len(spans)
		}
		sh.mu.RUnlock()
	}
	return n
}

// Reset drops every indexed trace.
func (idx *Index) Reset() {
	for _, sh := range idx.shards {
		sh.mu.Lock()
		sh.traces = make(map[string][]*span.Span)
		sh.lastSeen = make(map[string]time.Time)
		sh.mu.Unlock()
	}
}
