// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

// RenderReport renders the Markdown content plan for a run: one section per
// pillar with its brief, members, and target keywords, a gaps section
// listing every sub-query that was not profiled — whether a stage failed it
// or the run was cancelled before it was attempted — and the cost rollup.
// The output depends only on the Run, so regenerating from a persisted
// artifact yields byte-identical Markdown.
func RenderReport(run *types.Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Content Plan: %s\n\n", run.Query)
	fmt.Fprintf(&b, "Run `%s`", run.ID)
	if run.Location != "" {
		fmt.Fprintf(&b, " (location: %s)", run.Location)
	}
	fmt.Fprintf(&b, ", started %s, status %s.\n\n",
		run.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"), run.Status)

	byID := make(map[string]types.SubQuery, len(run.SubQueries))
	for _, sq := range run.SubQueries {
		byID[sq.ID] = sq
	}

	pillars := Cluster(run)
	fmt.Fprintf(&b, "## Content Pillars\n\n")
	if len(pillars) == 0 {
		fmt.Fprintf(&b, "No sub-queries were profiled, so no pillars could be built.\n\n")
	}
	for i, p := range pillars {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, p.Label)
		fmt.Fprintf(&b, "%s\n\n", p.Brief)
		fmt.Fprintf(&b, "Covered sub-queries:\n\n")
		for _, id := range p.MemberIDs {
			sq := byID[id]
			fmt.Fprintf(&b, "- `%s` %s", id, sq.Text)
			if sq.Routing != nil {
				fmt.Fprintf(&b, " _(%s)_", strings.Join(sq.Routing.Modalities, ", "))
			}
			fmt.Fprintf(&b, "\n")
		}
		fmt.Fprintf(&b, "\n")
		if len(p.TargetKeywords) > 0 {
			fmt.Fprintf(&b, "Target keywords: %s\n\n", strings.Join(p.TargetKeywords, ", "))
		}
	}

	// A gap is any sub-query without a profile. That covers stage failures
	// and items a cancelled run never attempted, which carry no failure
	// record at all.
	var gaps []types.SubQuery
	for _, sq := range run.SubQueries {
		if sq.Profile == nil {
			gaps = append(gaps, sq)
		}
	}
	fmt.Fprintf(&b, "## Gaps\n\n")
	if len(gaps) == 0 {
		fmt.Fprintf(&b, "None. Every sub-query was profiled.\n\n")
	} else {
		fmt.Fprintf(&b, "These sub-queries could not be profiled and are not covered by any pillar:\n\n")
		for _, sq := range gaps {
			f := sq.RoutingFailure
			if f == nil {
				f = sq.ProfileFailure
			}
			switch {
			case f != nil:
				fmt.Fprintf(&b, "- `%s` %s — %s failed: %s", sq.ID, sq.Text, f.Stage, f.Reason)
				if f.Detail != "" {
					fmt.Fprintf(&b, " (%s)", f.Detail)
				}
				fmt.Fprintf(&b, "\n")
			case sq.Routed():
				fmt.Fprintf(&b, "- `%s` %s — skipped: run ended before profiling\n", sq.ID, sq.Text)
			default:
				fmt.Fprintf(&b, "- `%s` %s — skipped: run ended before routing\n", sq.ID, sq.Text)
			}
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Costs\n\n")
	fmt.Fprintf(&b, "Total: $%.6f across %d calls.\n", run.Costs.Total, len(run.Costs.Entries))
	stages := make([]string, 0, len(run.Costs.ByStage))
	for stage := range run.Costs.ByStage {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(&b, "- %s: $%.6f\n", stage, run.Costs.ByStage[types.Stage(stage)])
	}

	return b.String()
}

// WriteReport renders the plan and writes it to path.
func WriteReport(run *types.Run, path string) error {
	if err := os.WriteFile(path, []byte(RenderReport(run)), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
