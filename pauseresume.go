package main

import (
	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause an in-progress upload",
		Long:  "Pauses the upload with the given id. Its in-flight chunk uploads are aborted and stay eligible for re-upload; no new chunks are scheduled until resume.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Coord.Pause(args[0])
			cc.Statusf("paused: %s\n", args[0])
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Coord.Resume(args[0])
			cc.Statusf("resumed: %s\n", args[0])
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an upload and discard its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Coord.Cancel(args[0])
			cc.Statusf("cancelled: %s\n", args[0])
			return nil
		},
	}
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed upload from scratch",
		Long:  "Resets the item to queued and re-enters it into the engine, bumping its retry count. The underlying engine session is discarded, not resumed mid-chunk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Coord.Retry(args[0])
			cc.Statusf("retrying: %s\n", args[0])
			return nil
		},
	}
}

func newClearCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed items from the active list",
		Long:  "Completed uploads stay in AggregateState until cleared so 'status' can show them; history is unaffected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			cc.Coord.ClearCompleted()
			cc.Statusf("cleared completed items\n")
			return nil
		},
	}
}
