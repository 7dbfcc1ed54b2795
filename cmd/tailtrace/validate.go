package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/tailtrace/pkg/cli"
	"mercator-hq/tailtrace/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file with environment overrides applied and report
every invalid field.

Examples:
  tailtrace validate config.yaml
  tailtrace validate --config /etc/tailtrace/config.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}

	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "✗ %s has %d invalid field(s):\n", displayPath(path), len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
			}
		}
		return cli.NewConfigError("config", err.Error())
	}

	fmt.Fprintf(out, "✓ %s is valid\n", displayPath(path))
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "  Storage: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(out, "  Sampling: %g head, tail above %s\n", cfg.Tracer.SamplingRate, cfg.Tracer.TailThreshold)
	if cfg.Analyzer.ReportSchedule != "" {
		fmt.Fprintf(out, "  Slow-trace report: %q\n", cfg.Analyzer.ReportSchedule)
	}
	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "default configuration"
	}
	return path
}
