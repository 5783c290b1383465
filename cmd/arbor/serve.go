package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve [manifest]",
	Short: "Start the HTTP server for a pipeline",
	Long: `Starts the engine in server mode, exposing the execution API as JSON over
HTTP: start, resume, replay, and cancel executions, read their history, and
manage the result cache. Prometheus metrics are served on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		handler, closeStore, err := buildHandler(cmd, args[0])
		if err != nil {
			return err
		}
		defer closeStore()

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stderr, "arbor server listening on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			fmt.Fprintf(os.Stderr, "shutting down (%v)\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				if closeErr := srv.Close(); closeErr != nil {
					return fmt.Errorf("forced shutdown failed: %w", closeErr)
				}
			}
			return nil
		}
	},
}

// buildHandler assembles the engine plus its HTTP handler, with a dedicated
// Prometheus registry wired through lifecycle hooks.
func buildHandler(cmd *cobra.Command, manifestPath string) (http.Handler, func() error, error) {
	logger := newLogger(cmd)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	engine, closeStore, err := buildEngine(cmd, manifestPath,
		arbor.WithLifecycleHooks(metrics.Hooks()))
	if err != nil {
		return nil, nil, err
	}

	handler := httpAdapter.NewHandler(engine,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithMetrics(reg))

	return handler, closeStore, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
