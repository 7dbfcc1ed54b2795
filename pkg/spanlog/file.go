package spanlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"mercator-hq/tailtrace/pkg/span"
)

// MaxRecordBytes bounds one encoded record, newline included. Append refuses
// larger records and replay skips them.
const MaxRecordBytes = 1 << 20

// FileConfig configures the newline-delimited JSON log.
type FileConfig struct {
	// Path is the log file location. Default: data/traces.ndjson
	Path string

	// Sync fsyncs the file after each append.
	Sync bool
}

// DefaultFileConfig returns the default file log configuration.
func DefaultFileConfig() FileConfig {
	return FileConfig{Path: "data/traces.ndjson"}
}

// FileLog appends one JSON record per line to a local file.
type FileLog struct {
	mu     sync.Mutex
	f      *os.File
	config FileConfig
	logger *slog.Logger
	closed bool
}

// OpenFile opens (or creates) the log file for appending.
func OpenFile(cfg FileConfig) (*FileLog, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultFileConfig().Path
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, span.NewDurabilityError(BackendFile, "mkdir", err)
		}
	}

	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, span.NewDurabilityError(BackendFile, "open", err)
	}

	logger := slog.Default().With("component", "spanlog.file")
	logger.Info("span log opened", "path", cfg.Path, "sync", cfg.Sync)

	return &FileLog{f: f, config: cfg, logger: logger}, nil
}

// Append writes the record and its newline with a single write call.
func (l *FileLog) Append(ctx context.Context, s *span.Span) error {
	line, err := span.Marshal(s)
	if err != nil {
		return span.NewDurabilityError(BackendFile, "encode", err)
	}
	line = append(line, '\n')
	if len(line) > MaxRecordBytes {
		return fmt.Errorf("%w: encoded record is %d bytes, limit is %d", span.ErrInvalidSpan, len(line), MaxRecordBytes)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return span.NewDurabilityError(BackendFile, "append", os.ErrClosed)
	}
	if _, err := l.f.Write(line); err != nil {
		return span.NewDurabilityError(BackendFile, "append", err)
	}
	if l.config.Sync {
		if err := l.f.Sync(); err != nil {
			return span.NewDurabilityError(BackendFile, "sync", err)
		}
	}
	return nil
}

// Replay reads the file from the start. Undecodable lines, such as a torn
// final record after a crash, and lines over MaxRecordBytes are skipped and
// counted.
func (l *FileLog) Replay(ctx context.Context, fn func(*span.Span) error) (ReplayStats, error) {
	return ReplayFile(ctx, l.config.Path, fn)
}

// ReplayFile replays an NDJSON span file without opening it for writing.
// A missing file replays as empty.
func ReplayFile(ctx context.Context, path string, fn func(*span.Span) error) (ReplayStats, error) {
	var stats ReplayStats
	logger := slog.Default().With("component", "spanlog.file")

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, span.NewDurabilityError(BackendFile, "replay_open", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, MaxRecordBytes)
	for lineNo := 1; ; lineNo++ {
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		raw, oversized, err := nextLine(r)
		if err != nil && !errors.Is(err, io.EOF) {
			return stats, span.NewDurabilityError(BackendFile, "replay_read", fmt.Errorf("line %d: %w", lineNo, err))
		}

		if line := bytes.TrimSpace(raw); oversized {
			stats.Skipped++
			logger.Warn("skipping oversized span record", "path", path, "line", lineNo, "limit", MaxRecordBytes)
		} else if len(line) > 0 {
			s, uerr := span.Unmarshal(line)
			if uerr != nil {
				stats.Skipped++
				logger.Warn("skipping unreadable span record", "path", path, "line", lineNo, "error", uerr)
			} else {
				stats.Records++
				if ferr := fn(s); ferr != nil {
					return stats, ferr
				}
			}
		}

		if err != nil {
			return stats, nil
		}
	}
}

// nextLine reads one newline-terminated line. A line that does not fit in
// the reader's buffer is consumed up to its newline and reported as
// oversized. The returned slice is only valid until the next read.
func nextLine(r *bufio.Reader) ([]byte, bool, error) {
	line, err := r.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return line, false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.ReadSlice('\n')
	}
	return nil, true, err
}

// Ping verifies the file handle is still usable.
func (l *FileLog) Ping(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return span.NewDurabilityError(BackendFile, "ping", os.ErrClosed)
	}
	if _, err := l.f.Stat(); err != nil {
		return span.NewDurabilityError(BackendFile, "ping", err)
	}
	return nil
}

// Name returns "file".
func (l *FileLog) Name() string { return BackendFile }

// Path returns the log file location.
func (l *FileLog) Path() string { return l.config.Path }

// Close flushes and closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return span.NewDurabilityError(BackendFile, "close", err)
	}
	return l.f.Close()
}
