package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/tailtrace/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("New() with invalid level returned nil error")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("New() with invalid format returned nil error")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736")
	ctx = WithSpanID(ctx, "00f067aa0ba902b7")

	logger.InfoContext(ctx, "span stored", "service", "svc")

	line := decodeLine(t, &buf)
	if line["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", line["request_id"])
	}
	if line["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", line["trace_id"])
	}
	if line["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", line["span_id"])
	}
	if line["service"] != "svc" {
		t.Errorf("service = %v, want svc", line["service"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	child := logger.With("component", "test")

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() failed: %v", err)
	}
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug record missing after SetLevel(debug): %q", buf.String())
	}

	if err := logger.SetLevel("nope"); err == nil {
		t.Error("SetLevel() with invalid level returned nil error")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q, want k=v", buf.String())
	}
}

func TestRedactor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Writer:    &buf,
		RedactPII: true,
		RedactPatterns: []config.RedactPattern{
			{Name: "tenant", Pattern: `tenant-\d+`, Replacement: "tenant-*"},
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("request",
		"authorization", "Bearer abc.def",
		"note", "contact ops@example.com for tenant-42",
		"trace_id", "4bf92f3577b34da6a3ce929d0e0e4736",
	)

	line := decodeLine(t, &buf)
	if line["authorization"] != "***" {
		t.Errorf("authorization = %v, want ***", line["authorization"])
	}
	note, _ := line["note"].(string)
	if strings.Contains(note, "ops@example.com") || strings.Contains(note, "tenant-42") {
		t.Errorf("note not redacted: %q", note)
	}
	if line["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id was altered: %v", line["trace_id"])
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LoggingConfig{Level: "debug", Format: "text", RedactPII: true})
	if cfg.Level != "debug" || cfg.Format != "text" || !cfg.RedactPII {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}
