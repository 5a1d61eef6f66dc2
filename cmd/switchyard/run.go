package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard"
	"github.com/switchyard-dev/switchyard/internal/cli"
	"github.com/switchyard-dev/switchyard/internal/presentation/tui"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <machine.json>",
	Short: "Run a machine to completion",
	Long: `Loads a machine definition and executes it until it finishes, stalls
or needs input the host cannot provide. Agent decisions require an API
key in SWITCHYARD_API_KEY or ANTHROPIC_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cli.NewLogger(cfg, logLevelFlag(cmd))
		quiet, _ := cmd.Flags().GetBool("quiet")
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = domain.NewID()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		machine, err := cli.LoadMachine(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}

		store, _, err := cli.NewStore(cfg)
		if err != nil {
			return err
		}
		engine := cli.NewEngine(cfg, logger, store, domain.LifecycleHooks{})

		if !quiet {
			tui.PrintBanner(switchyard.Version)
			fmt.Printf("machine: %s  session: %s\n\n", machine.Title, sessionID)
		}

		state, status, err := engine.Start(ctx, machine, sessionID)
		if err != nil {
			return err
		}

		render := tui.NewRenderer()
		for _, path := range state.Paths {
			for _, tr := range path.History {
				if tr.Output == "" {
					continue
				}
				out, rErr := render(tr.Output)
				if rErr != nil {
					out = tr.Output
				}
				fmt.Print(out)
			}
		}

		if !quiet {
			fmt.Printf("\nfinished: %s\n", status)
			for _, path := range state.Paths {
				fmt.Printf("  path %s at %s (%s)\n", path.ID, path.CurrentNode, path.Status)
			}
		}
		if status == domain.StatusStalled {
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("session", "", "Session id (generated when omitted)")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress the banner and the run summary")
}
