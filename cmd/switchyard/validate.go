package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/cli"
	"github.com/switchyard-dev/switchyard/internal/compiler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <machine.json>",
	Short: "Check a machine definition for structural problems",
	Long:  `Parses the machine and reports every integrity problem found: unknown edge endpoints, missing entry node, duplicate names and guards that do not parse.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		machine, err := cli.LoadMachine(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load machine: %w", err)
		}

		problems := compiler.Validate(machine)
		if len(problems) == 0 {
			fmt.Printf("%s: OK (%d nodes, %d edges)\n", machine.Title, len(machine.Nodes), len(machine.Edges))
			return nil
		}

		for _, p := range problems {
			fmt.Printf("- %v\n", p)
		}
		fmt.Printf("%d problem(s) found\n", len(problems))
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
