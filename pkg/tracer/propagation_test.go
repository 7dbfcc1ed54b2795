package tracer

import (
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/tailtrace/pkg/span"
)

var testCtx = span.Context{
	TraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
	SpanID:  "00f067aa0ba902b7",
	Sampled: true,
}

func TestInjectExtract_HTTPHeaders(t *testing.T) {
	for _, sampled := range []bool{true, false} {
		sc := testCtx
		sc.Sampled = sampled

		h := http.Header{}
		Inject(sc, propagation.HeaderCarrier(h))

		if h.Get("X-Trace-Id") != sc.TraceID {
			t.Errorf("X-Trace-Id = %q, want %q", h.Get("X-Trace-Id"), sc.TraceID)
		}
		wantFlag := "0"
		if sampled {
			wantFlag = "1"
		}
		if h.Get("X-Sampled") != wantFlag {
			t.Errorf("X-Sampled = %q, want %q", h.Get("X-Sampled"), wantFlag)
		}

		got := Extract(propagation.HeaderCarrier(h))
		if got != sc {
			t.Errorf("Extract() = %+v, want %+v", got, sc)
		}
	}
}

func TestPropagateHeaders(t *testing.T) {
	h := PropagateHeaders(testCtx)

	want := map[string]string{
		"X-Trace-Id":  testCtx.TraceID,
		"X-Span-Id":   testCtx.SpanID,
		"X-Sampled":   "1",
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	for k, v := range want {
		if h[k] != v {
			t.Errorf("PropagateHeaders()[%s] = %q, want %q", k, h[k], v)
		}
	}

	if len(PropagateHeaders(span.Context{})) != 0 {
		t.Error("PropagateHeaders(empty) wrote headers")
	}
}

func TestExtractHeaders_CaseInsensitive(t *testing.T) {
	got := ExtractHeaders(map[string]string{
		"x-trace-id": testCtx.TraceID,
		"x-span-id":  testCtx.SpanID,
		"x-sampled":  "1",
	})
	if got != testCtx {
		t.Errorf("ExtractHeaders() = %+v, want %+v", got, testCtx)
	}
}

func TestExtract_MalformedYieldsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"nothing", map[string]string{}},
		{"span id only", map[string]string{"X-Span-Id": "00f067aa0ba902b7"}},
		{"trace id only", map[string]string{"X-Trace-Id": testCtx.TraceID}},
		{"non-hex trace id", map[string]string{"X-Trace-Id": "zzzz", "X-Span-Id": "00f067aa0ba902b7"}},
		{"bad sampled flag", map[string]string{"X-Trace-Id": testCtx.TraceID, "X-Span-Id": testCtx.SpanID, "X-Sampled": "maybe"}},
		{"bad traceparent", map[string]string{"traceparent": "00-xyz-00f067aa0ba902b7-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHeaders(tt.headers)
			if !got.IsEmpty() {
				t.Errorf("ExtractHeaders() = %+v, want empty", got)
			}
		})
	}
}

func TestExtract_NilCarrier(t *testing.T) {
	if got := Extract(nil); !got.IsEmpty() {
		t.Errorf("Extract(nil) = %+v, want empty", got)
	}
}

func TestMalformedCarrierStartsNewRoot(t *testing.T) {
	tr := newTestTracer(t, 1.0, nil)

	parent := ExtractHeaders(map[string]string{"X-Trace-Id": "nope", "X-Span-Id": "also-nope"})
	s := tr.StartSpan("op", parent, nil).Finish(nil)

	if !s.IsRoot() {
		t.Errorf("ParentSpanID = %q, want new root", s.ParentSpanID)
	}
	if s.TraceID == "nope" {
		t.Error("malformed trace id was used")
	}
}

func TestParseCarrier_Errors(t *testing.T) {
	_, err := ParseCarrier(propagation.MapCarrier{"X-Trace-Id": testCtx.TraceID, "X-Span-Id": "xyz"})
	var mce *span.MalformedCarrierError
	if !errors.As(err, &mce) {
		t.Fatalf("ParseCarrier() error = %v, want *span.MalformedCarrierError", err)
	}
	if mce.Field != HeaderSpanID {
		t.Errorf("MalformedCarrierError.Field = %s, want %s", mce.Field, HeaderSpanID)
	}

	sc, err := ParseCarrier(propagation.MapCarrier{})
	if err != nil || !sc.IsEmpty() {
		t.Errorf("ParseCarrier(empty) = %+v, %v; want empty, nil", sc, err)
	}
}

func TestExtract_UUIDTraceID(t *testing.T) {
	got := ExtractHeaders(map[string]string{
		"X-Trace-Id": "3F2504E0-4F89-41D3-9A0C-0305E82C3301",
		"X-Span-Id":  "a1b2c3d4e5f60718",
	})
	if got.TraceID != "3f2504e0-4f89-41d3-9a0c-0305e82c3301" {
		t.Errorf("TraceID = %s, want lowercased uuid", got.TraceID)
	}
	if got.Sampled {
		t.Error("missing X-Sampled treated as sampled")
	}
}

func TestExtract_TraceParentFallback(t *testing.T) {
	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	got := Extract(propagation.HeaderCarrier(h))
	if got != testCtx {
		t.Errorf("Extract() = %+v, want %+v", got, testCtx)
	}
}

func TestValidateTraceParent(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00", true},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", false},
		{"ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e473-00f067aa0ba902b7-01", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := ValidateTraceParent(tt.value); got != tt.want {
			t.Errorf("ValidateTraceParent(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}

	sc, ok := ParseTraceParent("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00")
	if !ok || sc.Sampled {
		t.Errorf("ParseTraceParent(flags=00) = %+v, %v; want unsampled", sc, ok)
	}
}

func TestFormatTraceParent_NonW3CIDs(t *testing.T) {
	if _, ok := FormatTraceParent(span.Context{TraceID: "3f2504e0-4f89-41d3-9a0c-0305e82c3301", SpanID: "a1b2c3d4e5f60718"}); ok {
		t.Error("FormatTraceParent() accepted a dashed trace id")
	}
}
