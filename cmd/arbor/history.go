package main

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [execution-id]",
	Short: "Print the full record of an execution",
	Long: `Prints the execution's latest snapshot and its append-only provenance
chain: node results, retries with their classification, cache hits, merges,
and cancellations, ordered by logical timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		store, closeStore, err := openStore(cmd, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		rec, err := store.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known execution IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		store, closeStore, err := openStore(cmd, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		ids, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(ids)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(listCmd)
}
