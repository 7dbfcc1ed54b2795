package analyzer

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/tailtrace/pkg/span"
)

// Node is one span in a reconstructed trace tree.
type Node struct {
	Span     *span.Span `json:"span"`
	Children []*Node    `json:"children"`
}

// sortSpans returns a copy of spans ordered by (start_ts, span_id).
func sortSpans(spans []*span.Span) []*span.Span {
	sorted := make([]*span.Span, 0, len(spans))
	for _, s := range spans {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.StartTS.Equal(b.StartTS) {
			return a.StartTS.Before(b.StartTS)
		}
		return a.SpanID < b.SpanID
	})
	return sorted
}

// BuildSpanTree links spans into a forest. A span is attached under the span
// named by its parent_span_id when that span is in the set; otherwise it is
// a root. When span ids repeat, the earliest occurrence owns the children.
// Parent cycles are broken at their earliest member, which becomes a root.
func BuildSpanTree(spans []*span.Span) []*Node {
	sorted := sortSpans(spans)
	n := len(sorted)
	if n == 0 {
		return []*Node{}
	}

	owner := make(map[string]int, n)
	for i, s := range sorted {
		if _, ok := owner[s.SpanID]; !ok {
			owner[s.SpanID] = i
		}
	}

	parent := make([]int, n)
	for i, s := range sorted {
		parent[i] = -1
		if s.ParentSpanID == "" {
			continue
		}
		if p, ok := owner[s.ParentSpanID]; ok && p != i {
			parent[i] = p
		}
	}
	breakCycles(parent)

	nodes := make([]*Node, n)
	for i, s := range sorted {
		nodes[i] = &Node{Span: s, Children: []*Node{}}
	}

	roots := []*Node{}
	for i := range sorted {
		if parent[i] < 0 {
			roots = append(roots, nodes[i])
			continue
		}
		p := nodes[parent[i]]
		p.Children = append(p.Children, nodes[i])
	}
	return roots
}

// breakCycles detaches the lowest-indexed member of every parent cycle.
func breakCycles(parent []int) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(parent))
	var path []int

	for i := range parent {
		if state[i] == done {
			continue
		}
		path = path[:0]
		j := i
		for j >= 0 && state[j] == unvisited {
			state[j] = visiting
			path = append(path, j)
			j = parent[j]
		}
		if j >= 0 && state[j] == visiting {
			start := 0
			for path[start] != j {
				start++
			}
			lowest := j
			for _, k := range path[start:] {
				if k < lowest {
					lowest = k
				}
			}
			parent[lowest] = -1
		}
		for _, k := range path {
			state[k] = done
		}
	}
}

// CalculateTraceDuration returns max(end_ts) - min(start_ts) over spans.
func CalculateTraceDuration(spans []*span.Span) time.Duration {
	var start, end time.Time
	for _, s := range spans {
		if s == nil {
			continue
		}
		if start.IsZero() || s.StartTS.Before(start) {
			start = s.StartTS
		}
		if end.IsZero() || s.EndTS.After(end) {
			end = s.EndTS
		}
	}
	if d := end.Sub(start); d > 0 {
		return d
	}
	return 0
}

// spanDuration is measured from the timestamps, the same source
// CalculateTraceDuration uses.
func spanDuration(s *span.Span) time.Duration {
	return s.Duration()
}

// DominantSpan returns the longest span. Ties go to the earliest start, then
// the smallest span_id. It returns nil for an empty set.
func DominantSpan(spans []*span.Span) *span.Span {
	var best *span.Span
	var bestDur time.Duration
	for _, s := range spans {
		if s == nil {
			continue
		}
		d := spanDuration(s)
		switch {
		case best == nil, d > bestDur:
		case d == bestDur && s.StartTS.Before(best.StartTS):
		case d == bestDur && s.StartTS.Equal(best.StartTS) && s.SpanID < best.SpanID:
		default:
			continue
		}
		best, bestDur = s, d
	}
	return best
}

// RenderTree writes one line per span, indented two spaces per depth:
//
//	service_a.handle_api_request - 48.2ms
//	  service_a.call_service_b - 40.1ms
//
// Traversal uses an explicit stack, so arbitrarily deep chains are safe.
func RenderTree(w io.Writer, roots []*Node) error {
	type frame struct {
		node  *Node
		depth int
	}

	bw := bufio.NewWriter(w)
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{roots[i], 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bw.WriteString(strings.Repeat("  ", f.depth))
		bw.WriteString(f.node.Span.Name())
		bw.WriteString(" - ")
		bw.WriteString(formatMillis(span.DurationMillis(spanDuration(f.node.Span))))
		bw.WriteString("ms\n")

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
	return bw.Flush()
}

func formatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
