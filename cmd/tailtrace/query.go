package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/span"
)

var queryFlags struct {
	endpoint string
	format   string
	timeout  time.Duration
}

var queryCmd = &cobra.Command{
	Use:   "query <trace-id>",
	Short: "Fetch one trace from a running collector",
	Long: `Fetch the spans of one trace from a running collector's /trace endpoint.

Examples:
  # Waterfall of a trace from the configured collector
  tailtrace query 4bf92f3577b34da6a3ce929d0e0e4736

  # Raw spans as JSON from another collector
  tailtrace query 4bf92f3577b34da6a3ce929d0e0e4736 --endpoint http://10.0.0.5:3000 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: queryTrace,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryFlags.endpoint, "endpoint", "", "collector base URL (uses tracer.collector_endpoint if not specified)")
	queryCmd.Flags().StringVar(&queryFlags.format, "format", "text", "output format: text, json")
	queryCmd.Flags().DurationVar(&queryFlags.timeout, "timeout", 10*time.Second, "request timeout")
}

// fetchTrace retrieves the spans of traceID from the collector at endpoint.
func fetchTrace(endpoint, traceID string, timeout time.Duration) ([]*span.Span, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(timeout)

	var spans []*span.Span
	resp, err := client.R().
		SetPathParam("traceID", traceID).
		SetResult(&spans).
		Get("/trace/{traceID}")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", endpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("collector responded %s", resp.Status())
	}
	return spans, nil
}

func queryTrace(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(queryFlags.format)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("format", "csv output is not supported for query")
	}

	endpoint := queryFlags.endpoint
	if endpoint == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		endpoint = cfg.Tracer.CollectorEndpoint
	}

	traceID := args[0]
	spans, err := fetchTrace(endpoint, traceID, queryFlags.timeout)
	if err != nil {
		return cli.NewCommandError("query", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, spans)
	}

	if len(spans) == 0 {
		fmt.Fprintf(out, "Trace %s has no spans.\n", traceID)
		return nil
	}
	fmt.Fprintf(out, "Trace: %s (%d spans)\n\n", traceID, len(spans))
	return analyzer.RenderTree(out, analyzer.BuildSpanTree(spans))
}
