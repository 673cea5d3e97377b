package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/fanout-engine/internal/pipeline"
	"github.com/pdiddy/fanout-engine/internal/plan"
)

var reportCmd = &cobra.Command{
	Use:   "report <run.json>",
	Short: "Regenerate the content plan from a persisted run",
	Long: `Report rebuilds the Markdown content plan from a run artifact alone.
Clustering is deterministic, so the regenerated plan is identical to the one
written when the run executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("out", "", "write the plan to a file instead of stdout")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	run, err := pipeline.LoadRun(args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out != "" {
		if err := plan.WriteReport(run, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "plan saved to %s\n", out)
		return nil
	}
	fmt.Print(plan.RenderReport(run))
	return nil
}
