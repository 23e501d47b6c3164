package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqm/internal/ledger"
)

func newLedgerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the scanned-files ledger",
	}
	cmd.AddCommand(newLedgerListCmd(a))
	return cmd
}

func newLedgerListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scanned files in recording order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, err := ledger.Open(ctx, a.ledgerOptions())
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()

			files, err := l.List(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch output {
			case "json":
				if files == nil {
					files = []string{}
				}
				return json.NewEncoder(w).Encode(files)
			case "table":
				for _, f := range files {
					fmt.Fprintln(w, f)
				}
				return nil
			default:
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	return cmd
}
