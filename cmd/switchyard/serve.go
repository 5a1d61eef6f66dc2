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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/cli"
	httpAdapter "github.com/switchyard-dev/switchyard/pkg/adapters/http"
	"github.com/switchyard-dev/switchyard/pkg/observability"
	"github.com/switchyard-dev/switchyard/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve <machine.json>",
	Short: "Start the HTTP server",
	Long: `Starts the engine in server mode, exposing sessions, stepping and
checkpoints as a JSON API. The API is effect-based: clients execute the
returned effects and post the agent results back. Prometheus metrics are
served on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cli.NewLogger(cfg, logLevelFlag(cmd))
		port, _ := cmd.Flags().GetString("port")

		machine, err := cli.LoadMachine(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}

		metrics, err := observability.NewMetrics("switchyard", prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}

		store, checkpoints, err := cli.NewStore(cfg)
		if err != nil {
			return err
		}
		engine := cli.NewEngine(cfg, logger, store, metrics.Hooks())
		sessions := session.NewManager(store, session.WithLogger(logger))

		server := httpAdapter.NewServer(engine.Core(), machine, sessions, checkpoints, logger)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", server.Handler())

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting Switchyard server on %s\n", srv.Addr)
			fmt.Printf("Serving machine: %s\n", machine.Title)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			fmt.Println("Switchyard server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
