package config

import "time"

// Default values for configuration fields.
const (
	DefaultListenAddress   = "127.0.0.1:3000"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)

	// MaxBodyBytesLimit is the largest accepted server.max_body_bytes. It
	// equals the span log's per-record limit.
	MaxBodyBytesLimit = int64(1 << 20)

	DefaultServiceName       = "tailtrace"
	DefaultSamplingRate      = 1.0
	DefaultTailThreshold     = 100 * time.Millisecond
	DefaultSendTimeout       = 2 * time.Second
	DefaultCollectorEndpoint = "http://127.0.0.1:3000"

	DefaultStorageBackend      = "file"
	DefaultFilePath            = "data/traces.ndjson"
	DefaultSQLitePath          = "data/traces.db"
	DefaultSQLiteDriver        = "sqlite"
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultSQLiteMaxOpenConns  = 4
	DefaultIndexShards         = 64
	DefaultAnalyzerSettleAfter = 30 * time.Second
	DefaultAnalyzerTopN        = 5

	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "tailtrace"
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 2 * time.Second
)

// Default returns a configuration with every field at its default value,
// including the boolean defaults that ApplyDefaults cannot infer from zero
// values. LoadConfig decodes YAML on top of it.
func Default() *Config {
	cfg := &Config{}
	cfg.Storage.SQLite.WALMode = true
	cfg.Telemetry.Logging.RedactPII = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Health.Enabled = true
	cfg.Tracer.SamplingRate = DefaultSamplingRate
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// sampling_rate 0 is meaningful (tail capture only), so it is not defaulted here.
	if cfg.Tracer.ServiceName == "" {
		cfg.Tracer.ServiceName = DefaultServiceName
	}
	if cfg.Tracer.TailThreshold == 0 {
		cfg.Tracer.TailThreshold = DefaultTailThreshold
	}
	if cfg.Tracer.SendTimeout == 0 {
		cfg.Tracer.SendTimeout = DefaultSendTimeout
	}
	if cfg.Tracer.CollectorEndpoint == "" {
		cfg.Tracer.CollectorEndpoint = DefaultCollectorEndpoint
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.File.Path == "" {
		cfg.Storage.File.Path = DefaultFilePath
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}

	if cfg.Index.Shards == 0 {
		cfg.Index.Shards = DefaultIndexShards
	}

	if cfg.Analyzer.SettleAfter == 0 {
		cfg.Analyzer.SettleAfter = DefaultAnalyzerSettleAfter
	}
	if cfg.Analyzer.TopN == 0 {
		cfg.Analyzer.TopN = DefaultAnalyzerTopN
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
