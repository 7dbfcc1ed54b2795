package spanlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/tailtrace/pkg/span"
)

// SQLite driver names as registered with database/sql.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPure is modernc.org/sqlite.
	DriverPure = "sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS spans (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	span_id  TEXT NOT NULL,
	record   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id);
`

// SQLiteConfig configures the SQLite-backed log.
type SQLiteConfig struct {
	// Path is the database file path. Default: data/traces.db
	Path string

	// Driver is "sqlite" (pure Go, default) or "sqlite3" (cgo).
	Driver string

	// WALMode enables write-ahead logging. Default: true
	WALMode bool

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns caps the connection pool. Default: 4
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the default SQLite log configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "data/traces.db",
		Driver:       DriverPure,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// SQLiteLog stores span records in an append-only table ordered by seq.
type SQLiteLog struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
	insert *sql.Stmt
}

// OpenSQLite opens the database and creates the schema if needed.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteLog, error) {
	defaults := DefaultSQLiteConfig()
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaults.BusyTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}

	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, span.NewDurabilityError(BackendSQLite, "open", err)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, span.NewDurabilityError(BackendSQLite, "mkdir", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, span.NewDurabilityError(BackendSQLite, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.Path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	l := &SQLiteLog{
		db:     db,
		config: cfg,
		logger: slog.Default().With("component", "spanlog.sqlite"),
	}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	l.logger.Info("SQLite span log initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)
	return l, nil
}

// sqliteDSN builds a connection string; the two drivers spell pragmas differently.
func sqliteDSN(cfg SQLiteConfig) (string, error) {
	q := url.Values{}
	busy := fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds())

	switch cfg.Driver {
	case DriverCGO:
		q.Set("_busy_timeout", busy)
		if cfg.WALMode {
			q.Set("_journal_mode", "WAL")
		}
	case DriverPure:
		q.Add("_pragma", "busy_timeout("+busy+")")
		if cfg.WALMode {
			q.Add("_pragma", "journal_mode(WAL)")
		}
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", cfg.Driver, DriverPure, DriverCGO)
	}

	if cfg.Path == ":memory:" {
		return ":memory:?" + q.Encode(), nil
	}
	return "file:" + cfg.Path + "?" + q.Encode(), nil
}

func (l *SQLiteLog) initialize() error {
	if _, err := l.db.Exec(schema); err != nil {
		return span.NewDurabilityError(BackendSQLite, "create_schema", err)
	}
	if _, err := l.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return span.NewDurabilityError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := l.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return span.NewDurabilityError(BackendSQLite, "get_schema_version", err)
	}
	if version != schemaVersion {
		return span.NewDurabilityError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", schemaVersion, version))
	}

	stmt, err := l.db.Prepare(`INSERT INTO spans (trace_id, span_id, record) VALUES (?, ?, ?)`)
	if err != nil {
		return span.NewDurabilityError(BackendSQLite, "prepare_insert", err)
	}
	l.insert = stmt
	return nil
}

// Append inserts one row.
func (l *SQLiteLog) Append(ctx context.Context, s *span.Span) error {
	record, err := span.Marshal(s)
	if err != nil {
		return span.NewDurabilityError(BackendSQLite, "encode", err)
	}
	if _, err := l.insert.ExecContext(ctx, s.TraceID, s.SpanID, string(record)); err != nil {
		return span.NewDurabilityError(BackendSQLite, "append", err)
	}
	return nil
}

// Replay streams every row in seq order.
func (l *SQLiteLog) Replay(ctx context.Context, fn func(*span.Span) error) (ReplayStats, error) {
	var stats ReplayStats

	rows, err := l.db.QueryContext(ctx, `SELECT seq, record FROM spans ORDER BY seq`)
	if err != nil {
		return stats, span.NewDurabilityError(BackendSQLite, "replay_query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			record string
		)
		if err := rows.Scan(&seq, &record); err != nil {
			return stats, span.NewDurabilityError(BackendSQLite, "replay_scan", err)
		}

		s, err := span.Unmarshal([]byte(record))
		if err != nil {
			stats.Skipped++
			l.logger.Warn("skipping unreadable span record", "seq", seq, "error", err)
			continue
		}

		stats.Records++
		if err := fn(s); err != nil {
			return stats, err
		}
	}
	if err := rows.Err(); err != nil {
		return stats, span.NewDurabilityError(BackendSQLite, "replay_rows", err)
	}
	return stats, nil
}

// Ping checks the database connection.
func (l *SQLiteLog) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return span.NewDurabilityError(BackendSQLite, "ping", err)
	}
	return nil
}

// Name returns "sqlite".
func (l *SQLiteLog) Name() string { return BackendSQLite }

// Close releases the prepared statement and the database.
func (l *SQLiteLog) Close() error {
	if l.insert != nil {
		l.insert.Close()
	}
	return l.db.Close()
}
