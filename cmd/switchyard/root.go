package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Switchyard is an executable-graph workflow engine",
	Long: `Switchyard runs workflow machines: graphs of typed nodes whose edges
carry guards and context-access permissions. Execution follows the rails
automatically and hands control to an LLM agent only where a real
decision exists.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", cli.DefaultConfigPath, "Path to the switchyard.yaml config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig resolves the persistent flags into a Config.
func loadConfig(cmd *cobra.Command) (*cli.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return cli.LoadConfig(path, cmd.Flags().Changed("config"))
}

func logLevelFlag(cmd *cobra.Command) string {
	level, _ := cmd.Flags().GetString("log-level")
	return level
}
