package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/badger"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/manifest"
	"github.com/aretw0/arbor/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor is a durable, resumable pipeline execution engine",
	Long: `Arbor runs DAG pipelines whose nodes call rate-limited external services.
Executions are durable: every node boundary is persisted, so interrupted runs
resume from their last completed node instead of starting over.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Badger database directory (empty = in-memory store)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelWarn
	}
	if asJSON, _ := cmd.Flags().GetBool("log-json"); asJSON {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

// openStore opens the execution store selected by the --db flag. The returned
// close function is a no-op for the in-memory store.
func openStore(cmd *cobra.Command, logger *slog.Logger) (ports.ExecutionStore, func() error, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		return memory.NewStore(), func() error { return nil }, nil
	}
	store, err := badger.NewStore(badger.WithPath(dbPath), badger.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}
	return store, store.Close, nil
}

// buildEngine loads the manifest and assembles an engine bound to the
// flag-selected store. Extra options are applied after the manifest-derived
// ones.
func buildEngine(cmd *cobra.Command, manifestPath string, extra ...arbor.Option) (*arbor.Engine, func() error, error) {
	logger := newLogger(cmd)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	g, err := m.BuildGraph(builtinKinds())
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(cmd, logger)
	if err != nil {
		return nil, nil, err
	}

	strategy, ok := domain.ParseMergeStrategy(m.MergeStrategy)
	if !ok {
		closeStore()
		return nil, nil, fmt.Errorf("manifest %s: unknown merge strategy %q", manifestPath, m.MergeStrategy)
	}

	opts := []arbor.Option{
		arbor.WithStore(store),
		arbor.WithLimits(m.Limits),
		arbor.WithMergeStrategy(strategy),
		arbor.WithCacheTTL(m.CacheTTL.Std()),
		arbor.WithLogger(logger),
	}
	opts = append(opts, extra...)

	engine, err := arbor.New(g, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return engine, closeStore, nil
}

// printJSON writes the value to stdout, indented for humans.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
