// Package spanlog provides the collector's durable, append-only span log.
//
// Every backend keeps records in append order and exposes only two data
// operations: Append one record, and Replay all records from the beginning.
// Existing records are never rewritten.
package spanlog

import (
	"context"
	"fmt"

	"mercator-hq/tailtrace/pkg/span"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Log is an append-only store of span records.
type Log interface {
	// Append durably writes one record. A returned error means the record may
	// not be recoverable and the caller must not treat it as stored.
	Append(ctx context.Context, s *span.Span) error

	// Replay calls fn for every record in append order. Returning an error
	// from fn stops the replay and is returned unchanged.
	Replay(ctx context.Context, fn func(*span.Span) error) (ReplayStats, error)

	// Ping checks that the log is still writable.
	Ping(ctx context.Context) error

	// Name returns the backend name.
	Name() string

	Close() error
}

// ReplayStats summarizes a replay pass.
type ReplayStats struct {
	// Records is the number of records delivered to the callback.
	Records int

	// Skipped counts records that could not be decoded.
	Skipped int
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	File    FileConfig
	SQLite  SQLiteConfig
}

// Open creates the backend named by cfg.Backend.
func Open(cfg Config) (Log, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return OpenFile(cfg.File)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLite)
	case BackendMemory:
		return NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("unknown span log backend: %s", cfg.Backend)
	}
}
