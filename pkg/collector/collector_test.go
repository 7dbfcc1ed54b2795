package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/tailtrace/pkg/config"
	"mercator-hq/tailtrace/pkg/index"
	"mercator-hq/tailtrace/pkg/span"
	"mercator-hq/tailtrace/pkg/spanlog"
	"mercator-hq/tailtrace/pkg/telemetry/metrics"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testSpan(traceID, spanID string) *span.Span {
	return &span.Span{
		TraceID:   traceID,
		SpanID:    spanID,
		Service:   "service_a",
		Operation: "handle_request",
		StartTS:   base,
		EndTS:     base.Add(10 * time.Millisecond),
		Sampled:   true,
	}
}

func TestIngest_StoresAndIndexes(t *testing.T) {
	log := spanlog.NewMemoryLog()
	c := New(log, index.New(4))

	result, err := c.Ingest(context.Background(), testSpan("t1", "s1"))
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if result != ResultStored {
		t.Errorf("result = %s, want %s", result, ResultStored)
	}
	if log.Len() != 1 {
		t.Errorf("log has %d records, want 1", log.Len())
	}
	if got := c.GetTrace("t1"); len(got) != 1 || got[0].SpanID != "s1" {
		t.Errorf("GetTrace() = %v, want [s1]", got)
	}
}

func TestIngest_DuplicateSpanIDKept(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Ingest(context.Background(), testSpan("t1", "dup")); err != nil {
			t.Fatalf("Ingest() failed: %v", err)
		}
	}

	if got := c.GetTrace("t1"); len(got) != 2 {
		t.Errorf("GetTrace() returned %d spans, want 2", len(got))
	}
}

func TestIngest_UnsampledDropped(t *testing.T) {
	log := spanlog.NewMemoryLog()
	c := New(log, nil)

	s := testSpan("t1", "s1")
	s.Sampled = false
	result, err := c.Ingest(context.Background(), s)
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if result != ResultDropped {
		t.Errorf("result = %s, want %s", result, ResultDropped)
	}
	if log.Len() != 0 || len(c.GetTrace("t1")) != 0 {
		t.Error("unsampled span was stored")
	}
}

func TestIngest_Invalid(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), nil)

	result, err := c.Ingest(context.Background(), testSpan("", "s1"))
	if !errors.Is(err, span.ErrInvalidSpan) {
		t.Fatalf("Ingest() error = %v, want ErrInvalidSpan", err)
	}
	if result != ResultInvalid {
		t.Errorf("result = %s, want %s", result, ResultInvalid)
	}
}

func TestIngest_DurabilityFailureNotIndexed(t *testing.T) {
	log := spanlog.NewMemoryLog()
	log.FailAppends(errors.New("disk full"))
	c := New(log, nil)

	result, err := c.Ingest(context.Background(), testSpan("t1", "s1"))
	var de *span.DurabilityError
	if !errors.As(err, &de) {
		t.Fatalf("Ingest() error = %v, want *span.DurabilityError", err)
	}
	if result != ResultFailed {
		t.Errorf("result = %s, want %s", result, ResultFailed)
	}
	if got := c.GetTrace("t1"); len(got) != 0 {
		t.Errorf("span indexed despite failed append: %v", got)
	}

	log.FailAppends(nil)
	if _, err := c.Ingest(context.Background(), testSpan("t1", "s2")); err != nil {
		t.Fatalf("Ingest() after recovery failed: %v", err)
	}
	if got := c.GetTrace("t1"); len(got) != 1 {
		t.Errorf("GetTrace() returned %d spans, want 1", len(got))
	}
}

func TestGetTrace_Unknown(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), nil)

	got := c.GetTrace("never-seen")
	if got == nil || len(got) != 0 {
		t.Errorf("GetTrace(unknown) = %#v, want empty slice", got)
	}
}

func TestIngest_ConcurrentSameTrace(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), index.New(2))

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := c.Ingest(context.Background(), testSpan("hot", fmt.Sprintf("%d-%d", w, i))); err != nil {
					t.Errorf("Ingest() failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if got := len(c.GetTrace("hot")); got != writers*perWriter {
		t.Errorf("GetTrace() returned %d spans, want %d", got, writers*perWriter)
	}
}

func TestRecover_RebuildsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.ndjson")
	fileLog, err := spanlog.OpenFile(spanlog.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}

	c := New(fileLog, nil)
	for _, s := range []*span.Span{testSpan("t1", "a"), testSpan("t2", "b"), testSpan("t1", "c")} {
		if _, err := c.Ingest(context.Background(), s); err != nil {
			t.Fatalf("Ingest() failed: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened, err := spanlog.OpenFile(spanlog.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	restarted := New(reopened, nil)
	defer restarted.Close()

	stats, err := restarted.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() failed: %v", err)
	}
	if stats.Records != 3 {
		t.Errorf("replayed %d records, want 3", stats.Records)
	}

	got := restarted.GetTrace("t1")
	if len(got) != 2 || got[0].SpanID != "a" || got[1].SpanID != "c" {
		t.Errorf("GetTrace(t1) after recovery = %v, want [a c]", got)
	}
	if restarted.Index().Len() != 2 {
		t.Errorf("recovered %d traces, want 2", restarted.Index().Len())
	}
}

func TestSend_ActsAsTransmitter(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), nil)
	if err := c.Send(context.Background(), testSpan("t1", "s1")); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if len(c.GetTrace("t1")) != 1 {
		t.Error("Send() did not ingest the span")
	}
}

func TestIngest_Metrics(t *testing.T) {
	m := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	log := spanlog.NewMemoryLog()
	c := New(log, nil, WithMetrics(m))

	c.Ingest(context.Background(), testSpan("t1", "s1"))
	unsampled := testSpan("t1", "s2")
	unsampled.Sampled = false
	c.Ingest(context.Background(), unsampled)
	log.FailAppends(errors.New("boom"))
	c.Ingest(context.Background(), testSpan("t1", "s3"))

	expected := `
# HELP test_collector_ingest_total Total number of spans received, by result
# TYPE test_collector_ingest_total counter
test_collector_ingest_total{result="dropped"} 1
test_collector_ingest_total{result="failed"} 1
test_collector_ingest_total{result="stored"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "test_collector_ingest_total"); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestIngest_RecordOverLogLimitRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.ndjson")
	fileLog, err := spanlog.OpenFile(spanlog.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	c := New(fileLog, nil)
	defer c.Close()

	big := testSpan("t1", "big")
	big.Tags = map[string]any{"blob": strings.Repeat("x", spanlog.MaxRecordBytes)}
	result, err := c.Ingest(context.Background(), big)
	if !errors.Is(err, span.ErrInvalidSpan) {
		t.Fatalf("Ingest() error = %v, want ErrInvalidSpan", err)
	}
	if result != ResultInvalid {
		t.Errorf("result = %s, want %s", result, ResultInvalid)
	}
	if got := c.GetTrace("t1"); len(got) != 0 {
		t.Errorf("rejected span was indexed: %v", got)
	}
}

func TestRecover_HTMLHeavyTagsSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.ndjson")
	fileLog, err := spanlog.OpenFile(spanlog.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	c := New(fileLog, nil)
	defer c.Close()

	markup := testSpan("t1", "markup")
	markup.Tags = map[string]any{"body": strings.Repeat("<", 400_000)}
	for _, s := range []*span.Span{markup, testSpan("t1", "plain")} {
		if _, err := c.Ingest(context.Background(), s); err != nil {
			t.Fatalf("Ingest(%s) failed: %v", s.SpanID, err)
		}
	}

	restarted := New(fileLog, nil)
	stats, err := restarted.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover() failed: %v", err)
	}
	if stats.Records != 2 || stats.Skipped != 0 {
		t.Errorf("Recover() stats = %+v, want 2 records 0 skipped", stats)
	}
	got := restarted.GetTrace("t1")
	if len(got) != 2 || got[0].Tags["body"] != markup.Tags["body"] {
		t.Errorf("GetTrace() after recovery returned %d spans or a mangled tag", len(got))
	}
}

func TestIngest_DurationFollowsTimestamps(t *testing.T) {
	c := New(spanlog.NewMemoryLog(), nil)

	if _, err := c.Ingest(context.Background(), testSpan("t1", "unset")); err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if got := c.GetTrace("t1"); len(got) != 1 || got[0].DurationMS != 10 {
		t.Errorf("stored duration_ms = %v, want 10", got)
	}

	tests := []struct {
		name       string
		durationMS float64
	}{
		{"negative", -5},
		{"larger than timestamps", 99999},
		{"overflows time.Duration", 1e300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSpan("t2", "bad")
			s.DurationMS = tt.durationMS
			result, err := c.Ingest(context.Background(), s)
			if !errors.Is(err, span.ErrInvalidSpan) || result != ResultInvalid {
				t.Errorf("Ingest() = %s, %v; want invalid", result, err)
			}
		})
	}
}

func TestIngest_IndexOrderMatchesLog(t *testing.T) {
	log := spanlog.NewMemoryLog()
	c := New(log, index.New(1))

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.Ingest(context.Background(), testSpan("hot", fmt.Sprintf("%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	var logged []string
	log.Replay(context.Background(), func(s *span.Span) error {
		logged = append(logged, s.SpanID)
		return nil
	})
	live := c.GetTrace("hot")
	if len(live) != len(logged) {
		t.Fatalf("index has %d spans, log has %d", len(live), len(logged))
	}
	for i, s := range live {
		if s.SpanID != logged[i] {
			t.Fatalf("index[%d] = %s, log[%d] = %s", i, s.SpanID, i, logged[i])
		}
	}
}

func TestBodyLimitFitsLogRecord(t *testing.T) {
	if config.MaxBodyBytesLimit > spanlog.MaxRecordBytes {
		t.Errorf("config.MaxBodyBytesLimit = %d exceeds spanlog.MaxRecordBytes = %d",
			config.MaxBodyBytesLimit, spanlog.MaxRecordBytes)
	}
}
