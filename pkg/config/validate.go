package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "tracer.sampling_rate").
	Field string

	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTracer(&cfg.Tracer)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateAnalyzer(&cfg.Analyzer)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Index.Shards < 0 {
		errs = append(errs, FieldError{Field: "index.shards", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must not be negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}
	if cfg.MaxBodyBytes > MaxBodyBytesLimit {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: fmt.Sprintf("must not exceed %d, got %d", MaxBodyBytesLimit, cfg.MaxBodyBytes),
		})
	}
	return errs
}

func validateTracer(cfg *TracerConfig) []FieldError {
	var errs []FieldError

	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		errs = append(errs, FieldError{
			Field:   "tracer.sampling_rate",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %g", cfg.SamplingRate),
		})
	}
	if cfg.TailThreshold < 0 {
		errs = append(errs, FieldError{Field: "tracer.tail_threshold", Message: "must not be negative"})
	}
	if cfg.SendTimeout < 0 {
		errs = append(errs, FieldError{Field: "tracer.send_timeout", Message: "must not be negative"})
	}
	if cfg.CollectorEndpoint != "" {
		u, err := url.Parse(cfg.CollectorEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "tracer.collector_endpoint",
				Message: fmt.Sprintf("must be an http(s) URL, got %q", cfg.CollectorEndpoint),
			})
		}
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "file":
		if cfg.File.Path == "" {
			errs = append(errs, FieldError{Field: "storage.file.path", Message: "is required for the file backend"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("must be \"sqlite\" or \"sqlite3\", got %q", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must not be negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of file, sqlite, memory; got %q", cfg.Backend),
		})
	}
	return errs
}

func validateAnalyzer(cfg *AnalyzerConfig) []FieldError {
	var errs []FieldError

	if cfg.SettleAfter < 0 {
		errs = append(errs, FieldError{Field: "analyzer.settle_after", Message: "must not be negative"})
	}
	if cfg.TopN < 0 {
		errs = append(errs, FieldError{Field: "analyzer.top_n", Message: "must not be negative"})
	}
	if cfg.ReportSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReportSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "analyzer.report_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of json, text, console; got %q", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if p.Name == "" || p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i),
				Message: "name and pattern are required",
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	if cfg.Health.Enabled {
		if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
			errs = append(errs, FieldError{Field: "telemetry.health.liveness_path", Message: "must start with /"})
		}
		if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
			errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "must start with /"})
		}
	}
	return errs
}
