package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/manifest"
)

var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Execute a pipeline manifest",
	Long: `Loads the YAML manifest, starts a new execution with the given initial
state, waits for it to finish, and prints the final snapshot as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeStore, err := buildEngine(cmd, args[0])
		if err != nil {
			return err
		}
		defer closeStore()

		rawInput, _ := cmd.Flags().GetString("input")
		initial, err := domain.UnmarshalGraphState([]byte(rawInput))
		if err != nil {
			return fmt.Errorf("parse --input: %w", err)
		}

		handle, err := engine.Execute(cmd.Context(), initial)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "execution %s started\n", handle.ExecutionID)

		snap, runErr := handle.Wait(cmd.Context())
		if snap != nil {
			if err := printJSON(snap); err != nil {
				return err
			}
		}
		return runErr
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a pipeline manifest without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		g, err := m.BuildGraph(builtinKinds())
		if err != nil {
			return err
		}
		fmt.Printf("%s: pipeline %q ok (%d nodes)\n", args[0], g.Name(), len(g.NodeIDs()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	runCmd.Flags().StringP("input", "i", "{}", "Initial state as a JSON object")
}
