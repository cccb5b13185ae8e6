// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/alif/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded research runs or show one run",
	Long: `History lists past runs from the local SQLite history database, newest
first. Pass a run ID to see its per-category engines and source counts.
Only run metadata is recorded; scraped content is never stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")
	historyCmd.Flags().Int("prune", -1, "delete all but the newest N runs")
	historyCmd.Flags().Bool("json", false, "output runs as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	if keep, _ := cmd.Flags().GetInt("prune"); keep >= 0 {
		n, err := store.Prune(ctx, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Pruned %d runs\n", n)
		return nil
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if len(args) == 1 {
		run, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return history.FormatJSON([]history.Run{run}, os.Stdout)
		}
		history.FormatDetail(run, os.Stdout)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return history.FormatJSON(runs, os.Stdout)
	}
	history.FormatTable(runs, os.Stdout)
	return nil
}
