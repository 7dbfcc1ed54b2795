package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("format", "bad"), ExitConfigError},
		{"wrapped config", NewCommandError("analyze", fmt.Errorf("flags: %w", NewConfigError("n", "bad"))), ExitConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cause := errors.New("collector unreachable")
	err := NewCommandError("query", cause)
	if !errors.Is(err, cause) {
		t.Error("CommandError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "query") {
		t.Errorf("Error() = %q, want command name", err.Error())
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, ok := range []string{"text", "json", "csv"} {
		if _, err := ParseOutputFormat(ok); err != nil {
			t.Errorf("ParseOutputFormat(%q) failed: %v", ok, err)
		}
	}
	_, err := ParseOutputFormat("yaml")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("ParseOutputFormat(yaml) error = %v, want *ConfigError", err)
	}
}

type table struct{}

func (table) Header() []string { return []string{"trace_id", "spans"} }
func (table) Rows() [][]string { return [][]string{{"t1", "3"}, {"t2", "1"}} }

func TestFormatters(t *testing.T) {
	tests := []struct {
		format OutputFormat
		data   any
		want   string
	}{
		{FormatText, "hello", "hello\n"},
		{FormatJSON, map[string]int{"n": 1}, "{\n  \"n\": 1\n}\n"},
		{FormatCSV, table{}, "trace_id,spans\nt1,3\nt2,1\n"},
		{FormatCSV, [][]string{{"a", "b,c"}}, "a,\"b,c\"\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewFormatter(tt.format).FormatTo(&buf, tt.data); err != nil {
			t.Fatalf("FormatTo(%s) failed: %v", tt.format, err)
		}
		if buf.String() != tt.want {
			t.Errorf("FormatTo(%s) = %q, want %q", tt.format, buf.String(), tt.want)
		}
	}

	if err := NewFormatter(FormatCSV).FormatTo(&bytes.Buffer{}, 42); err == nil {
		t.Error("CSV FormatTo(int) should fail")
	}
}

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "req")
	p.Start(4)
	p.Update(2, 0)
	if !strings.Contains(buf.String(), "[██████████░░░░░░░░░░] 2/4") {
		t.Errorf("half-way output = %q", buf.String())
	}

	p.Update(10, 1)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "4/4 (1 failed)") {
		t.Errorf("progress output = %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("Finish() should end the line: %q", out)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	default:
	}

	cancelParent()
	<-ctx.Done()
}
