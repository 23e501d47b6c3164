package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqm/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every unscanned file once and exit",
		Long:  "run processes each unscanned file in the source directory in name order. A file that fails is logged and left unscanned for the next run; the exit status is non-zero if any file failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, l, err := a.openRunner(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			res, runErr := runner.Run(ctx, pipeline.TriggerManual)
			if res.ID != "" {
				if err := printRun(cmd.OutOrStdout(), res, output); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if n := res.Failed(); n > 0 {
				return fmt.Errorf("%d of %d files failed", n, len(res.Files))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	return cmd
}

func printRun(w io.Writer, res pipeline.RunResult, output string) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "run %s: %s, %d files\n", res.ID, res.Status, len(res.Files))
	if len(res.Files) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tRECORDS\tCLEAN\tREJECTED\tISSUES\tERROR")
	for _, f := range res.Files {
		errText := f.Error
		if f.Code != "" {
			errText = f.Code + " " + errText
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			f.File, f.Status, f.Records, f.Clean, f.Rejected, len(f.Issues), errText)
	}
	return tw.Flush()
}
