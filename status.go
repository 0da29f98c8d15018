package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/chunkupload/internal/uploadmodel"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current AggregateState",
		Long:  "Lists every tracked upload item with its status and progress, plus the overall percent across all items.",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	state := cc.Coord.Snapshot()

	if cc.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	printStatusText(state)

	return nil
}

func printStatusText(state uploadmodel.AggregateState) {
	if len(state.Items) == 0 {
		fmt.Println("No uploads tracked.")
		return
	}

	headers := []string{"ID", "NAME", "STATUS", "PROGRESS", "SIZE"}
	rows := make([][]string, 0, len(state.Items))

	for _, item := range state.Items {
		status := string(item.Status)
		if item.Status == uploadmodel.StatusError && item.ErrorMessage != "" {
			status = fmt.Sprintf("%s (%s)", status, item.ErrorMessage)
		}

		rows = append(rows, []string{
			item.File.ID,
			item.File.Name,
			status,
			fmt.Sprintf("%d%%", item.Progress.Percent),
			formatBytes(item.File.Size),
		})
	}

	printTable(os.Stdout, headers, rows)
	fmt.Printf("\nOverall: %d%%\n", state.OverallPercent)
}
