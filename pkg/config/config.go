package config

import "time"

// Config is the root configuration structure for tailtrace.
type Config struct {
	// Server contains the HTTP listener configuration for the collector and
	// analysis API.
	Server ServerConfig `yaml:"server"`

	// Tracer contains defaults for tracers created by this process (the demo
	// services and any embedded instrumentation).
	Tracer TracerConfig `yaml:"tracer"`

	// Storage selects the durable span log backend.
	Storage StorageConfig `yaml:"storage"`

	// Index configures the in-memory trace index.
	Index IndexConfig `yaml:"index"`

	// Analyzer contains trace analysis and reporting configuration.
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Telemetry contains logging, metrics and health configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:3000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps an ingested span payload.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// TracerConfig contains sampling and transmission settings.
type TracerConfig struct {
	// ServiceName labels spans produced by this process.
	// Default: "tailtrace"
	ServiceName string `yaml:"service_name"`

	// SamplingRate is the head sampling probability in [0, 1].
	// Default: 1.0
	SamplingRate float64 `yaml:"sampling_rate"`

	// TailThreshold is the latency above which a span is always sent.
	// Default: 100ms
	TailThreshold time.Duration `yaml:"tail_threshold"`

	// SendTimeout bounds each span transmission.
	// Default: 2s
	SendTimeout time.Duration `yaml:"send_timeout"`

	// CollectorEndpoint is the base URL spans are posted to.
	// Default: "http://127.0.0.1:3000"
	CollectorEndpoint string `yaml:"collector_endpoint"`
}

// StorageConfig selects the span log backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "memory".
	// Default: "file"
	Backend string `yaml:"backend"`

	File   FileStorageConfig   `yaml:"file"`
	SQLite SQLiteStorageConfig `yaml:"sqlite"`
}

// FileStorageConfig configures the NDJSON span log.
type FileStorageConfig struct {
	// Path is the log file path.
	// Default: "data/traces.ndjson"
	Path string `yaml:"path"`

	// Sync fsyncs after every append.
	// Default: false
	Sync bool `yaml:"sync"`
}

// SQLiteStorageConfig configures the SQLite span log.
type SQLiteStorageConfig struct {
	// Path is the database file path.
	// Default: "data/traces.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (modernc.org/sqlite) or "sqlite3" (mattn/go-sqlite3).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the lock wait timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns caps the connection pool.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`
}

// IndexConfig configures the trace index.
type IndexConfig struct {
	// Shards is the number of lock shards (rounded up to a power of two).
	// Default: 64
	Shards int `yaml:"shards"`
}

// AnalyzerConfig contains analysis settings.
type AnalyzerConfig struct {
	// SettleAfter is how long a trace must go without new spans before its
	// summary is marked settled. Summaries stay provisional regardless.
	// Default: 30s
	SettleAfter time.Duration `yaml:"settle_after"`

	// TopN is the default number of traces in summaries and reports.
	// Default: 5
	TopN int `yaml:"top_n"`

	// ReportSchedule is a cron expression for the periodic slow-trace report.
	// Empty disables the report.
	// Default: ""
	ReportSchedule string `yaml:"report_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is one of "json", "text", "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactPII masks credentials and emails in log fields.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns adds custom redaction rules.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the scrape endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "tailtrace"
	Namespace string `yaml:"namespace"`
}

// HealthConfig contains health endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath defaults to "/health".
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath defaults to "/ready".
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each component check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
