package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tailtrace",
	Short: "tailtrace - tail-sampled distributed tracing",
	Long: `tailtrace collects spans from instrumented services, stores them in an
append-only log and reconstructs traces to find where time went.

Spans are head-sampled per trace and always kept when they are slower than
the tail threshold, so the slow requests survive even at low sampling rates.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code for its error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
