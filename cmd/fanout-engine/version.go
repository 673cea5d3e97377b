package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of fanout-engine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fanout-engine %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
