package analyzer

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"mercator-hq/tailtrace/pkg/span"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// mk builds a span starting startMS after t0 and lasting durMS.
func mk(traceID, spanID, parentID string, startMS, durMS int) *span.Span {
	start := t0.Add(time.Duration(startMS) * time.Millisecond)
	return &span.Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentID,
		Service:      "svc",
		Operation:    spanID,
		StartTS:      start,
		EndTS:        start.Add(time.Duration(durMS) * time.Millisecond),
		DurationMS:   float64(durMS),
		Sampled:      true,
	}
}

// shape renders the forest as span ids with nesting brackets.
func shape(roots []*Node) string {
	parts := make([]string, 0, len(roots))
	for _, n := range roots {
		if len(n.Children) == 0 {
			parts = append(parts, n.Span.SpanID)
			continue
		}
		parts = append(parts, n.Span.SpanID+"["+shape(n.Children)+"]")
	}
	return strings.Join(parts, " ")
}

func permutations(spans []*span.Span) [][]*span.Span {
	if len(spans) <= 1 {
		return [][]*span.Span{append([]*span.Span(nil), spans...)}
	}
	var out [][]*span.Span
	for i := range spans {
		rest := make([]*span.Span, 0, len(spans)-1)
		rest = append(rest, spans[:i]...)
		rest = append(rest, spans[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*span.Span{spans[i]}, p...))
		}
	}
	return out
}

func TestBuildSpanTree_OrderIndependent(t *testing.T) {
	spans := []*span.Span{
		mk("t", "root", "", 0, 100),
		mk("t", "b", "root", 20, 30),
		mk("t", "a", "root", 10, 5),
		mk("t", "c", "b", 25, 10),
		mk("t", "orphan", "missing", 5, 1),
	}

	want := "root[a b[c]] orphan"
	for _, p := range permutations(spans) {
		if got := shape(BuildSpanTree(p)); got != want {
			t.Fatalf("BuildSpanTree() = %q, want %q", got, want)
		}
	}
}

func TestBuildSpanTree_SameStartOrderedBySpanID(t *testing.T) {
	spans := []*span.Span{
		mk("t", "root", "", 0, 10),
		mk("t", "z", "root", 1, 1),
		mk("t", "m", "root", 1, 1),
	}
	if got := shape(BuildSpanTree(spans)); got != "root[m z]" {
		t.Errorf("BuildSpanTree() = %q, want %q", got, "root[m z]")
	}
}

func TestBuildSpanTree_DuplicateSpanID(t *testing.T) {
	spans := []*span.Span{
		mk("t", "root", "", 0, 10),
		mk("t", "dup", "root", 2, 1),
		mk("t", "dup", "root", 1, 1),
		mk("t", "child", "dup", 3, 1),
	}

	roots := BuildSpanTree(spans)
	if got := shape(roots); got != "root[dup[child] dup]" {
		t.Fatalf("BuildSpanTree() = %q, want %q", got, "root[dup[child] dup]")
	}
	if roots[0].Children[0].Span.StartTS != t0.Add(time.Millisecond) {
		t.Error("earliest duplicate should own the children")
	}
}

func TestBuildSpanTree_Cycle(t *testing.T) {
	spans := []*span.Span{
		mk("t", "a", "b", 0, 1),
		mk("t", "b", "a", 1, 1),
		mk("t", "self", "self", 2, 1),
	}
	if got := shape(BuildSpanTree(spans)); got != "a[b] self" {
		t.Errorf("BuildSpanTree() = %q, want %q", got, "a[b] self")
	}
}

func TestBuildSpanTree_Empty(t *testing.T) {
	if roots := BuildSpanTree(nil); roots == nil || len(roots) != 0 {
		t.Errorf("BuildSpanTree(nil) = %#v, want empty", roots)
	}
}

func TestCalculateTraceDuration(t *testing.T) {
	tests := []struct {
		name  string
		spans []*span.Span
		want  time.Duration
	}{
		{"nested", []*span.Span{mk("t", "a", "", 0, 100), mk("t", "b", "a", 20, 30)}, 100 * time.Millisecond},
		{"disjoint", []*span.Span{mk("t", "a", "", 0, 10), mk("t", "b", "", 90, 10)}, 100 * time.Millisecond},
		{"single", []*span.Span{mk("t", "a", "", 5, 7)}, 7 * time.Millisecond},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateTraceDuration(tt.spans); got != tt.want {
				t.Errorf("CalculateTraceDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDominantSpan(t *testing.T) {
	spans := []*span.Span{
		mk("t", "A", "", 0, 10),
		mk("t", "B", "", 0, 90),
		mk("t", "C", "", 0, 30),
	}
	if got := DominantSpan(spans); got.SpanID != "B" {
		t.Errorf("DominantSpan() = %s, want B", got.SpanID)
	}

	tied := []*span.Span{
		mk("t", "late", "", 10, 50),
		mk("t", "y", "", 0, 50),
		mk("t", "x", "", 0, 50),
	}
	if got := DominantSpan(tied); got.SpanID != "x" {
		t.Errorf("DominantSpan(tied) = %s, want x", got.SpanID)
	}

	if DominantSpan(nil) != nil {
		t.Error("DominantSpan(nil) should be nil")
	}
}

func TestRenderTree(t *testing.T) {
	spans := []*span.Span{
		mk("t", "root", "", 0, 100),
		mk("t", "child", "root", 10, 50),
		mk("t", "leaf", "child", 20, 5),
		mk("t", "sibling", "root", 70, 20),
	}

	var buf bytes.Buffer
	if err := RenderTree(&buf, BuildSpanTree(spans)); err != nil {
		t.Fatalf("RenderTree() failed: %v", err)
	}

	want := "svc.root - 100ms\n" +
		"  svc.child - 50ms\n" +
		"    svc.leaf - 5ms\n" +
		"  svc.sibling - 20ms\n"
	if buf.String() != want {
		t.Errorf("RenderTree() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestDurations_ComeFromTimestamps(t *testing.T) {
	parent := mk("t", "a", "", 0, 10)
	parent.DurationMS = -5
	child := mk("t", "b", "a", 2, 2)
	child.DurationMS = 99999
	spans := []*span.Span{parent, child}

	if got := DominantSpan(spans); got.SpanID != "a" {
		t.Errorf("DominantSpan() = %s, want a", got.SpanID)
	}

	var buf bytes.Buffer
	if err := RenderTree(&buf, BuildSpanTree(spans)); err != nil {
		t.Fatalf("RenderTree() failed: %v", err)
	}
	if want := "svc.a - 10ms\n  svc.b - 2ms\n"; buf.String() != want {
		t.Errorf("RenderTree() = %q, want %q", buf.String(), want)
	}
}

func TestRenderTree_DeepChain(t *testing.T) {
	const depth = 10000
	spans := make([]*span.Span, depth)
	for i := range spans {
		parent := ""
		if i > 0 {
			parent = fmt.Sprintf("s%05d", i-1)
		}
		spans[i] = mk("deep", fmt.Sprintf("s%05d", i), parent, i, 1)
	}

	roots := BuildSpanTree(spans)
	if len(roots) != 1 {
		t.Fatalf("BuildSpanTree() returned %d roots, want 1", len(roots))
	}

	var buf bytes.Buffer
	if err := RenderTree(&buf, roots); err != nil {
		t.Fatalf("RenderTree() failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != depth {
		t.Fatalf("rendered %d lines, want %d", len(lines), depth)
	}
	last := lines[depth-1]
	if indent := len(last) - len(strings.TrimLeft(last, " ")); indent != 2*(depth-1) {
		t.Errorf("deepest line indented %d spaces, want %d", indent, 2*(depth-1))
	}
}
