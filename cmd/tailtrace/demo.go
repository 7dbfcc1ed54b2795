package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/analyzer"
	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/collector"
	"mercator-hq/tailtrace/pkg/demo"
	"mercator-hq/tailtrace/pkg/index"
	"mercator-hq/tailtrace/pkg/tracer"
)

var demoFlags struct {
	requests    int
	concurrency int
	rate        float64
	tail        time.Duration
	endpoint    string
	seed        uint64
	topN        int
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the instrumented demo services under load",
	Long: `Start three instrumented services on loopback and send requests through
them: A calls B, B calls C, and C queries a simulated database behind a pool
of ten connections. One query in a hundred is slow.

Without --endpoint the spans go to an in-process collector backed by the
configured span log, and the slowest traces are printed at the end. With
--endpoint they are posted to a running collector.

Examples:
  # 200 requests at 10% head sampling; slow spans are kept regardless
  tailtrace demo --requests 200 --sampling-rate 0.1

  # Send spans to a collector started with 'tailtrace run'
  tailtrace demo --endpoint http://127.0.0.1:3000`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoFlags.requests, "requests", demo.DefaultRequests, "number of requests to send")
	demoCmd.Flags().IntVar(&demoFlags.concurrency, "concurrency", demo.DefaultConcurrency, "maximum requests in flight")
	demoCmd.Flags().Float64Var(&demoFlags.rate, "sampling-rate", -1, "head sampling rate (uses tracer.sampling_rate if negative)")
	demoCmd.Flags().DurationVar(&demoFlags.tail, "tail-threshold", 0, "tail sampling threshold (uses tracer.tail_threshold if zero)")
	demoCmd.Flags().StringVar(&demoFlags.endpoint, "endpoint", "", "collector base URL (in-process collector if empty)")
	demoCmd.Flags().Uint64Var(&demoFlags.seed, "seed", 0, "random seed for simulated latencies (0 for time-based)")
	demoCmd.Flags().IntVarP(&demoFlags.topN, "top", "n", 5, "slowest traces to print with the in-process collector")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg); err != nil {
		return err
	}

	rate := cfg.Tracer.SamplingRate
	if demoFlags.rate >= 0 {
		rate = demoFlags.rate
	}
	tail := cfg.Tracer.TailThreshold
	if demoFlags.tail > 0 {
		tail = demoFlags.tail
	}

	ctx, cancel := cli.SetupSignalHandler(cmd.Context())
	defer cancel()

	var (
		tx   tracer.Transmitter
		coll *collector.Collector
	)
	if demoFlags.endpoint != "" {
		tx = tracer.NewHTTPTransmitter(demoFlags.endpoint, cfg.Tracer.SendTimeout)
	} else {
		spanLog, err := openSpanLog(cfg)
		if err != nil {
			return cli.NewCommandError("demo", err)
		}
		coll = collector.New(spanLog, index.New(cfg.Index.Shards))
		defer coll.Close()
		tx = coll
	}

	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "req")
	progress.Start(int64(demoFlags.requests))

	result, err := demo.Run(ctx, demo.Config{
		Requests:      demoFlags.requests,
		Concurrency:   demoFlags.concurrency,
		SamplingRate:  rate,
		TailThreshold: tail,
		Transmitter:   tx,
		Seed:          demoFlags.seed,
		Progress:      func(done, failed int) { progress.Update(int64(done), int64(failed)) },
	})
	if err != nil {
		progress.Error(err)
		return cli.NewCommandError("demo", err)
	}
	progress.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %d requests in %s (%d failed)\n", result.Requests, result.Elapsed.Round(time.Millisecond), result.Failures)
	fmt.Fprintf(out, "  Client latency p50 %.1fms, p95 %.1fms, p99 %.1fms\n",
		result.Latency.P50MS, result.Latency.P95MS, result.Latency.P99MS)

	if coll == nil {
		return nil
	}

	an := analyzer.FromIndex(coll.Index(), analyzer.WithSettleAfter(cfg.Analyzer.SettleAfter))
	fmt.Fprintf(out, "  Collected %d spans in %d traces\n\n", coll.Index().SpanCount(), coll.Index().Len())
	return an.RenderSummary(out, an.SummarizeTopSlowest(demoFlags.topN))
}
