package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [manifest] [execution-id]",
	Short: "Resume an interrupted execution",
	Long: `Loads the execution's last durable snapshot and continues from the nodes
whose dependencies are already complete. A completed execution returns its
terminal result without re-executing anything.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeStore, err := buildEngine(cmd, args[0])
		if err != nil {
			return err
		}
		defer closeStore()

		handle, err := engine.Resume(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "execution %s resumed\n", handle.ExecutionID)

		snap, runErr := handle.Wait(cmd.Context())
		if snap != nil {
			if err := printJSON(snap); err != nil {
				return err
			}
		}
		return runErr
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay [manifest] [execution-id]",
	Short: "Re-execute a completed run and audit its determinism",
	Long: `Replays a completed execution from its recorded initial state as a new
record referencing the original. Diverging output is flagged on the new record
for audit.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeStore, err := buildEngine(cmd, args[0])
		if err != nil {
			return err
		}
		defer closeStore()

		handle, err := engine.Replay(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		snap, runErr := handle.Wait(cmd.Context())
		if snap != nil {
			if err := printJSON(snap); err != nil {
				return err
			}
			if snap.DeterminismFlagged {
				fmt.Fprintln(os.Stderr, "warning: replay diverged from the original execution")
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(replayCmd)
}
