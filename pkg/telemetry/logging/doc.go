// Package logging configures tailtrace's structured logger on top of log/slog.
//
// The logger adds request_id, trace_id and span_id to records logged with a
// context that carries them, optionally masks credentials, and supports
// changing the level at runtime:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	slog.SetDefault(logger.Slog())
//	...
//	logger.SetLevel("debug")
package logging
