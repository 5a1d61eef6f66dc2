package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard"
	"github.com/switchyard-dev/switchyard/internal/cli"
	mcpAdapter "github.com/switchyard-dev/switchyard/pkg/adapters/mcp"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/session"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp <machine.json>",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP server so AI agents can create sessions,
step them and fold results back in as tools.

Supported transports:
- stdio (default): Standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents or debuggers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cli.NewLogger(cfg, logLevelFlag(cmd))
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		machine, err := cli.LoadMachine(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}

		store, _, err := cli.NewStore(cfg)
		if err != nil {
			return err
		}
		engine := cli.NewEngine(cfg, logger, store, domain.LifecycleHooks{})
		sessions := session.NewManager(store, session.WithLogger(logger))

		srv := mcpAdapter.NewServer(engine.Core(), machine, sessions, switchyard.Version)

		switch transport {
		case "stdio":
			// Keep Stdout clean for JSON-RPC.
			log.SetOutput(os.Stderr)
			logger.Info("starting MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			logger.Info("starting MCP server (SSE)", "port", port)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil && err != http.ErrServerClosed {
				return err
			}
			slog.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport to use (stdio, sse)")
	mcpCmd.Flags().IntP("port", "p", 8081, "Port for the SSE transport")
}
