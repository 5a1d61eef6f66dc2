package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchyard-dev/switchyard"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of switchyard",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("switchyard version %s\n", switchyard.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
