package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/telemetry/health"
)

// Set by build flags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(versionFormat)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(out, health.VersionInfo{
				Version:   Version,
				Commit:    GitCommit,
				BuildTime: BuildDate,
				GoVersion: runtime.Version(),
			})
		}

		fmt.Fprintf(out, "tailtrace %s\n", Version)
		fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
		fmt.Fprintf(out, "Go Version: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "output format: text, json")
}
