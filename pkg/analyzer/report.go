package analyzer

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var separator = strings.Repeat("─", 80)

// RenderSummary writes the plain-text slowest-traces report: rank, total
// duration, span count, the waterfall and the dominant span of each trace.
func (a *Analyzer) RenderSummary(w io.Writer, summaries []TraceSummary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Top %d slowest traces:\n\n", len(summaries))

	for i, ts := range summaries {
		fmt.Fprintf(bw, "#%d Trace: %s\n", i+1, ts.TraceID)
		fmt.Fprintf(bw, "Total duration: %sms\n", formatMillis(ts.DurationMS))
		fmt.Fprintf(bw, "Span count: %d\n", ts.SpanCount)
		if !ts.Settled {
			fmt.Fprintln(bw, "Status: provisional")
		}

		fmt.Fprintln(bw, "\nWaterfall view:")
		if err := RenderTree(bw, BuildSpanTree(a.idx.Get(ts.TraceID))); err != nil {
			return err
		}

		if ts.Dominant != nil {
			fmt.Fprintf(bw, "\nDominant span: %s (%sms)\n", ts.DominantSpan, formatMillis(ts.DominantMS))
		}
		fmt.Fprintf(bw, "%s\n\n", separator)
	}
	return bw.Flush()
}
