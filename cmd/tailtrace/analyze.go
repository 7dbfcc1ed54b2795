package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/span"
)

var analyzeFlags struct {
	logPath string
	topN    int
	exportN int
	format  string
	output  string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze stored traces",
	Long: `Reconstruct traces from the span log and report where time went.

By default spans are read from the storage backend in the config. Use --log
to read an NDJSON span file directly; a torn final line is skipped.

Subcommands:
  top     - Slowest traces with their waterfall and dominant span
  trace   - One trace in full
  stats   - Duration distribution across traces
  export  - Slowest-trace summaries as JSON or CSV

Examples:
  # Five slowest traces from the configured log
  tailtrace analyze top

  # Ten slowest from a file, as JSON
  tailtrace analyze top -n 10 --log data/traces.ndjson --format json

  # Export every summary to CSV
  tailtrace analyze export -n 0 --format csv -o traces.csv`,
}

var analyzeTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the slowest traces",
	Args:  cobra.NoArgs,
	RunE:  analyzeTop,
}

var analyzeTraceCmd = &cobra.Command{
	Use:   "trace <trace-id>",
	Short: "Print one trace as a waterfall",
	Args:  cobra.ExactArgs(1),
	RunE:  analyzeTrace,
}

var analyzeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the trace duration distribution",
	Args:  cobra.NoArgs,
	RunE:  analyzeStats,
}

var analyzeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export slowest-trace summaries",
	Args:  cobra.NoArgs,
	RunE:  analyzeExport,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeTopCmd, analyzeTraceCmd, analyzeStatsCmd, analyzeExportCmd)

	analyzeCmd.PersistentFlags().StringVar(&analyzeFlags.logPath, "log", "", "NDJSON span file (uses the configured storage if not specified)")
	analyzeCmd.PersistentFlags().StringVar(&analyzeFlags.format, "format", "text", "output format: text, json, csv")

	analyzeTopCmd.Flags().IntVarP(&analyzeFlags.topN, "top", "n", 5, "number of traces (0 for all)")
	analyzeExportCmd.Flags().IntVarP(&analyzeFlags.exportN, "top", "n", 0, "number of traces (0 for all)")
	analyzeExportCmd.Flags().StringVarP(&analyzeFlags.output, "output", "o", "", "output file (default: stdout)")
}

// loadAnalyzer builds an offline analyzer over --log or the configured
// span log.
func loadAnalyzer(ctx context.Context) (*analyzer.Analyzer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := setupLogging(cfg); err != nil {
		return nil, err
	}

	an := analyzer.New(analyzer.WithSettleAfter(cfg.Analyzer.SettleAfter))

	if analyzeFlags.logPath != "" {
		if _, err := an.LoadFile(ctx, analyzeFlags.logPath); err != nil {
			return nil, err
		}
		return an, nil
	}

	spanLog, err := openSpanLog(cfg)
	if err != nil {
		return nil, err
	}
	defer spanLog.Close()

	if _, err := an.Load(ctx, spanLog); err != nil {
		return nil, err
	}
	return an, nil
}

func analyzeTop(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analyzeFlags.format)
	if err != nil {
		return err
	}
	an, err := loadAnalyzer(cmd.Context())
	if err != nil {
		return cli.NewCommandError("analyze top", err)
	}

	summaries := an.SummarizeTopSlowest(analyzeFlags.topN)
	out := cmd.OutOrStdout()

	if format == cli.FormatText {
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No traces found.")
			return nil
		}
		return an.RenderSummary(out, summaries)
	}

	exporter, err := analyzer.NewExporter(string(format))
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	return exporter.Export(cmd.Context(), summaries, out)
}

func analyzeTrace(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analyzeFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("format", "csv output is not supported for a single trace")
	}

	an, err := loadAnalyzer(cmd.Context())
	if err != nil {
		return cli.NewCommandError("analyze trace", err)
	}

	traceID := args[0]
	detail, ok := an.Trace(traceID)
	if !ok {
		return cli.NewCommandError("analyze trace", fmt.Errorf("trace %s not found", traceID))
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, detail)
	}
	return renderTraceDetail(out, detail)
}

func renderTraceDetail(w io.Writer, detail analyzer.TraceDetail) error {
	fmt.Fprintf(w, "Trace: %s\n", detail.TraceID)
	fmt.Fprintf(w, "Total duration: %sms\n", strconv.FormatFloat(detail.DurationMS, 'f', -1, 64))
	fmt.Fprintf(w, "Span count: %d\n\n", len(detail.Spans))
	if err := analyzer.RenderTree(w, detail.Tree); err != nil {
		return err
	}
	if detail.Dominant != nil {
		fmt.Fprintf(w, "\nDominant span: %s (%sms)\n", detail.Dominant.Name(),
			strconv.FormatFloat(span.DurationMillis(detail.Dominant.Duration()), 'f', -1, 64))
	}
	return nil
}

// statsView prints DurationStats as text or CSV.
type statsView analyzer.DurationStats

func (v statsView) String() string {
	return fmt.Sprintf("Traces: %d\nMean: %.3fms\nP50: %.3fms\nP95: %.3fms\nP99: %.3fms\nMax: %.3fms",
		v.Count, v.MeanMS, v.P50MS, v.P95MS, v.P99MS, v.MaxMS)
}

func (v statsView) Header() []string {
	return []string{"count", "mean_ms", "p50_ms", "p95_ms", "p99_ms", "max_ms"}
}

func (v statsView) Rows() [][]string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', 3, 64) }
	return [][]string{{strconv.Itoa(v.Count), f(v.MeanMS), f(v.P50MS), f(v.P95MS), f(v.P99MS), f(v.MaxMS)}}
}

func analyzeStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analyzeFlags.format)
	if err != nil {
		return err
	}
	an, err := loadAnalyzer(cmd.Context())
	if err != nil {
		return cli.NewCommandError("analyze stats", err)
	}

	stats := an.Stats()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), stats)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), statsView(stats))
}

func analyzeExport(cmd *cobra.Command, args []string) error {
	format := analyzeFlags.format
	if format == string(cli.FormatText) {
		format = string(cli.FormatJSON)
	}
	exporter, err := analyzer.NewExporter(format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	an, err := loadAnalyzer(cmd.Context())
	if err != nil {
		return cli.NewCommandError("analyze export", err)
	}
	summaries := an.SummarizeTopSlowest(analyzeFlags.exportN)

	out := cmd.OutOrStdout()
	if analyzeFlags.output != "" {
		f, err := os.Create(analyzeFlags.output)
		if err != nil {
			return cli.NewCommandError("analyze export", err)
		}
		defer f.Close()
		out = f
	}

	if err := exporter.Export(cmd.Context(), summaries, out); err != nil {
		return cli.NewCommandError("analyze export", err)
	}
	if analyzeFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d traces to %s\n", len(summaries), analyzeFlags.output)
	}
	return nil
}
