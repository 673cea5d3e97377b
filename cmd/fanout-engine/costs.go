package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/pipeline"
)

var costsCmd = &cobra.Command{
	Use:   "costs <run.json>",
	Short: "Print the cost breakdown of a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := pipeline.LoadRun(args[0])
		if err != nil {
			return err
		}
		costs.FormatSummary(run.Costs, os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(costsCmd)
}
