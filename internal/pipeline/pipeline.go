// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates the fan-out stages over a single run and
// persists the run artifact. The orchestrator is the sole mutator of the
// Run aggregate: stages return annotated copies and the pipeline stamps
// statuses, timestamps, and the cost rollup.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/expand"
	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/internal/plan"
	"github.com/pdiddy/fanout-engine/internal/profile"
	"github.com/pdiddy/fanout-engine/internal/retrieval"
	"github.com/pdiddy/fanout-engine/internal/route"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// Pipeline wires the stage backends together for one or more runs.
type Pipeline struct {
	Expander  genai.Client
	Router    genai.Client
	Profiler  genai.Client
	Retriever retrieval.Client
	Ledger    *costs.Ledger
	Config    types.PipelineConfig
	Progress  io.Writer

	// test seams
	now   func() time.Time
	newID func() string
}

// New builds a pipeline over the given backends. Progress defaults to
// io.Discard when w is nil.
func New(expander, router, profiler genai.Client, retriever retrieval.Client, ledger *costs.Ledger, cfg types.PipelineConfig, w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	return &Pipeline{
		Expander:  expander,
		Router:    router,
		Profiler:  profiler,
		Retriever: retriever,
		Ledger:    ledger,
		Config:    cfg,
		Progress:  w,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Execute runs the full fan-out for one query. The returned Run is always
// non-nil and carries whatever the pipeline managed to produce; err is
// non-nil only when the run failed outright (empty query, failed expansion,
// or cancellation before routing began). Per-item stage failures do not
// fail the run; they ride on the sub-queries into the report.
func (p *Pipeline) Execute(ctx context.Context, query, location string) (*types.Run, error) {
	run := &types.Run{
		ID:        p.newID(),
		Query:     strings.TrimSpace(query),
		Location:  strings.TrimSpace(location),
		StartedAt: p.now().UTC(),
		Status:    types.StatusPending,
	}
	if run.Query == "" {
		return p.fail(run, fmt.Errorf("query must not be empty"))
	}

	fmt.Fprintf(p.Progress, "run %s: expanding %q\n", run.ID, run.Query)
	run.Status = types.StatusExpanding
	subs, err := expand.Expand(ctx, p.Expander, run.Query, run.Location, p.Config.Expansion, p.Progress)
	if err != nil {
		return p.fail(run, fmt.Errorf("expansion: %w", err))
	}
	run.SubQueries = subs

	run.Status = types.StatusRouting
	routed, routeSummary := route.All(ctx, p.Router, run.SubQueries, p.Config.Routing, p.Progress)
	run.SubQueries = routed
	if err := ctx.Err(); err != nil && routeSummary.Routed == 0 {
		return p.fail(run, fmt.Errorf("routing: %w", err))
	}

	if routeSummary.Routed > 0 {
		run.Status = types.StatusProfiling
		profiled, _ := profile.All(ctx, p.Profiler, p.Retriever, run.Location, run.SubQueries, p.Config.Profiling, p.Progress)
		run.SubQueries = profiled
	} else {
		fmt.Fprintf(p.Progress, "profiling skipped: no sub-query was routed\n")
	}

	if profiled := run.Profiled(); len(profiled) > 0 {
		run.Status = types.StatusClustering
		pillars := plan.Cluster(run)
		fmt.Fprintf(p.Progress, "clustered %d sub-queries into %d pillars\n", len(profiled), len(pillars))
	} else {
		fmt.Fprintf(p.Progress, "clustering skipped: no sub-query was profiled\n")
	}

	p.finish(run, types.StatusDone)
	return run, nil
}

// fail terminates the run without artifacts. FAILED is only reachable
// before any sub-query was routed.
func (p *Pipeline) fail(run *types.Run, err error) (*types.Run, error) {
	fmt.Fprintf(p.Progress, "run %s failed: %v\n", run.ID, err)
	p.finish(run, types.StatusFailed)
	return run, err
}

// finish stamps the terminal status, the finish time, and the cost rollup.
func (p *Pipeline) finish(run *types.Run, status types.RunStatus) {
	run.Status = status
	run.FinishedAt = p.now().UTC()
	if p.Ledger != nil {
		run.Costs = p.Ledger.Summary()
	}
}
