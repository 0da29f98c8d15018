package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed uploads",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	entries, err := cc.Store.LoadHistory()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if cc.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No completed uploads.")
		return nil
	}

	headers := []string{"ID", "NAME", "SIZE", "COMPLETED"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		rows = append(rows, []string{e.ID, e.Name, formatBytes(e.Size), formatTime(e.CompletedAt)})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history entries older than a duration",
		Long:  "Deletes history entries completed more than --older-than ago. No other pass removes history entries; the 24h session expiry applies to upload sessions only.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cutoff := time.Now().Add(-olderThan).Unix()
			if err := cc.Store.PruneHistoryBefore(cutoff); err != nil {
				return fmt.Errorf("pruning history: %w", err)
			}

			cc.Statusf("pruned history entries older than %s\n", olderThan)

			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "prune entries completed more than this long ago")

	return cmd
}
