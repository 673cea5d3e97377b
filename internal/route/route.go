// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package route implements Stage 2: per-sub-query source-type and modality
// routing. Each sub-query is routed independently; a failed item is marked
// with a routing-failure record and the batch continues.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// Summary holds counts from a routing run.
type Summary struct {
	Routed  int
	Failed  int
	Skipped int // items never attempted because the run was cancelled
}

// syncWriter serializes progress writes from the worker pool. The caller's
// writer sees one whole line at a time regardless of worker count.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// response is the per-item routing schema. Pointer slices distinguish a
// missing key from an explicitly empty one.
type response struct {
	SourceTypes *[]string `json:"source_types"`
	Modalities  *[]string `json:"modalities"`
}

// All routes every sub-query and returns the same sequence with either a
// routing decision or a failure record attached to each attempted item.
// Output cardinality always equals input cardinality. Items run through a
// bounded worker pool (cfg.Workers, default sequential); cancellation is
// checked between items, never mid-call.
func All(ctx context.Context, client genai.Client, subs []types.SubQuery, cfg types.RoutingConfig, w io.Writer) ([]types.SubQuery, Summary) {
	w = &syncWriter{w: w}
	out := make([]types.SubQuery, len(subs))
	copy(out, subs)

	sourceTypes := cfg.SourceTypes
	if len(sourceTypes) == 0 {
		sourceTypes = types.DefaultSourceTypes
	}
	modalities := cfg.Modalities
	if len(modalities) == 0 {
		modalities = types.DefaultModalities
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range out {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			routeOne(gctx, client, &out[i], sourceTypes, modalities, cfg, w)
			return nil
		})
	}
	_ = g.Wait() // failures are captured on the items

	var summary Summary
	for _, sq := range out {
		switch {
		case sq.Routing != nil:
			summary.Routed++
		case sq.RoutingFailure != nil:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	fmt.Fprintf(w, "routing: %d routed, %d failed, %d skipped\n",
		summary.Routed, summary.Failed, summary.Skipped)
	return out, summary
}

// routeOne annotates a single sub-query in place.
func routeOne(ctx context.Context, client genai.Client, sq *types.SubQuery, sourceTypes, modalities []string, cfg types.RoutingConfig, w io.Writer) {
	prompt, err := renderPrompt(promptData{
		Text:         sq.Text,
		LatentIntent: sq.LatentIntent,
		SourceTypes:  sourceTypes,
		Modalities:   modalities,
	})
	if err != nil {
		sq.RoutingFailure = &types.ItemFailure{
			Stage:  types.StageRouting,
			Reason: types.ReasonMalformed,
			Detail: fmt.Sprintf("rendering prompt: %v", err),
		}
		return
	}

	var routing types.Routing
	parse := func(raw []byte) error {
		var resp response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		if resp.SourceTypes == nil || resp.Modalities == nil {
			return fmt.Errorf("missing source_types or modalities key")
		}
		st, err := canonicalize(*resp.SourceTypes, sourceTypes, "source type")
		if err != nil {
			return err
		}
		mod, err := canonicalize(*resp.Modalities, modalities, "modality")
		if err != nil {
			return err
		}
		routing = types.Routing{SourceTypes: st, Modalities: mod}
		return nil
	}

	req := genai.Request{Prompt: prompt, Schema: genai.SchemaRouting, CallID: "route-" + sq.ID}
	attempts, err := genai.GenerateParsed(ctx, client, req, cfg.Retries(), parse)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", sq.ID, err)
		sq.RoutingFailure = &types.ItemFailure{
			Stage:    types.StageRouting,
			Reason:   genai.FailureReasonFor(err),
			Detail:   err.Error(),
			Attempts: attempts,
		}
		return
	}

	fmt.Fprintf(w, "routed  %s → %s\n", sq.ID, strings.Join(routing.SourceTypes, ", "))
	sq.Routing = &routing
}

// canonicalize validates every chosen value against the universe and maps
// it back to the universe's spelling. A value outside the universe is a
// schema violation.
func canonicalize(chosen, universe []string, label string) ([]string, error) {
	if len(chosen) == 0 {
		return nil, fmt.Errorf("empty %s list", label)
	}
	canonical := make(map[string]string, len(universe))
	for _, u := range universe {
		canonical[strings.ToLower(strings.TrimSpace(u))] = u
	}

	var out []string
	seen := make(map[string]bool)
	for _, c := range chosen {
		key := strings.ToLower(strings.TrimSpace(c))
		u, ok := canonical[key]
		if !ok {
			return nil, fmt.Errorf("unknown %s %q", label, c)
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, nil
}
