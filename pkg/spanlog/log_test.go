package spanlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/tailtrace/pkg/span"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "default is file",
			cfg:  Config{File: FileConfig{Path: filepath.Join(dir, "a.ndjson")}},
			want: BackendFile,
		},
		{
			name: "memory",
			cfg:  Config{Backend: BackendMemory},
			want: BackendMemory,
		},
		{
			name: "sqlite pure go",
			cfg:  Config{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: filepath.Join(dir, "a.db"), Driver: DriverPure, WALMode: true}},
			want: BackendSQLite,
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "kafka"},
			wantErr: true,
		},
		{
			name:    "unknown sqlite driver",
			cfg:     Config{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: filepath.Join(dir, "b.db"), Driver: "postgres"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Open(tt.cfg)
			if tt.wantErr {
				if err == nil {
					l.Close()
					t.Fatal("Open() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() failed: %v", err)
			}
			defer l.Close()
			if l.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", l.Name(), tt.want)
			}
		})
	}
}

func TestMemoryLog_FailAppends(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	if err := l.Append(ctx, testSpan("t1", "a")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	cause := errors.New("disk full")
	l.FailAppends(cause)

	err := l.Append(ctx, testSpan("t1", "b"))
	if !errors.Is(err, cause) {
		t.Fatalf("Append() error = %v, want wrapping %v", err, cause)
	}
	var durErr *span.DurabilityError
	if !errors.As(err, &durErr) {
		t.Fatalf("Append() error type = %T, want *span.DurabilityError", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	l.FailAppends(nil)
	if err := l.Ping(ctx); err != nil {
		t.Errorf("Ping() after heal failed: %v", err)
	}
}

func TestMemoryLog_StoresCopies(t *testing.T) {
	l := NewMemoryLog()
	s := testSpan("t1", "a")
	l.Append(context.Background(), s)
	s.Tags["k"] = "mutated"

	spans, _ := collect(t, l)
	if spans[0].Tags["k"] != "v" {
		t.Errorf("stored tag = %v, want v", spans[0].Tags["k"])
	}
}

func TestSQLiteLog_AppendReplayOrder(t *testing.T) {
	l, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "traces.db"), Driver: DriverPure, WALMode: true})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Append(ctx, testSpan(fmt.Sprintf("t%d", i%2), fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}
	// duplicates are stored as separate rows
	if err := l.Append(ctx, testSpan("t0", "s0")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	spans, stats := collect(t, l)
	if stats.Records != 6 {
		t.Fatalf("Replay() records = %d, want 6", stats.Records)
	}
	want := []string{"s0", "s1", "s2", "s3", "s4", "s0"}
	for i, s := range spans {
		if s.SpanID != want[i] {
			t.Errorf("spans[%d].SpanID = %s, want %s", i, s.SpanID, want[i])
		}
	}

	if err := l.Ping(ctx); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestSQLiteLog_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	cfg := SQLiteConfig{Path: path, Driver: DriverPure}

	l, err := OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	l.Append(context.Background(), testSpan("t1", "a"))
	l.Close()

	l, err = OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() reopen failed: %v", err)
	}
	defer l.Close()

	_, stats := collect(t, l)
	if stats.Records != 1 {
		t.Errorf("Replay() records = %d, want 1", stats.Records)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{DriverCGO, "file:x.db?_busy_timeout=100&_journal_mode=WAL"},
		{DriverPure, "file:x.db?_pragma=busy_timeout%28100%29&_pragma=journal_mode%28WAL%29"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := SQLiteConfig{Path: "x.db", Driver: tt.driver, WALMode: true, BusyTimeout: 100 * time.Millisecond}
			got, err := sqliteDSN(cfg)
			if err != nil {
				t.Fatalf("sqliteDSN() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("sqliteDSN() = %s, want %s", got, tt.want)
			}
		})
	}
}
