// Package analyzer reconstructs traces from stored spans and ranks them by
// end-to-end latency.
//
// An Analyzer reads either a span log replayed into its own index (offline
// analysis of a traces.ndjson file) or the collector's live index. Results
// are always provisional: later spans for a trace change its summary, and
// the Settled flag on a summary only reports that the trace has been quiet
// for the configured settle period.
//
// # Trees
//
// BuildSpanTree links spans by parent_span_id. A span whose parent is absent
// from the set becomes a root, so partial traces yield a forest. Roots and
// siblings are ordered by (start_ts, span_id), which makes the result
// independent of arrival order.
//
//	roots := analyzer.BuildSpanTree(spans)
//	analyzer.RenderTree(os.Stdout, roots)
//
// # Ranking
//
//	a := analyzer.New()
//	if _, err := a.LoadFile(ctx, "traces.ndjson"); err != nil {
//	    return err
//	}
//	for _, s := range a.SummarizeTopSlowest(5) {
//	    fmt.Println(s.TraceID, s.DurationMS)
//	}
package analyzer
