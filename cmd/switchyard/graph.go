package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard"
	"github.com/switchyard-dev/switchyard/internal/cli"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph <machine.json>",
	Short: "Export the machine as a Mermaid diagram",
	Long:  `Parses the machine definition and prints a Mermaid flowchart. Pass --session to overlay the visited and current nodes of a stored session.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		machine, err := cli.LoadMachine(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}

		var state *domain.ExecutionState
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			store, _, err := cli.NewStore(cfg)
			if err != nil {
				return err
			}
			state, err = store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
		}

		fmt.Print(switchyard.Mermaid(machine, state))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Overlay the execution trace of this session")
}
