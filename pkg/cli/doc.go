/*
Package cli provides helpers shared by the tailtrace commands: output
formatting, progress reporting, signal handling and exit codes.

Output formats:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, spans); err != nil {
		return err
	}

Values implementing Tabular can also be written as CSV.

Progress for the demo load generator:

	progress := cli.NewProgressReporter(os.Stderr, "req")
	progress.Start(total)
	progress.Update(done, failed)
	progress.Finish()
*/
package cli
