// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package profile implements Stage 3: per-sub-query competitive profiling.
// Each routed sub-query is searched on the web, its top-ranking pages are
// fetched, and the generation model scores the competitive field on five
// fixed criteria. Items fail independently; the batch continues.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/internal/retrieval"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

const defaultTopResults = 3

// Summary holds counts from a profiling run.
type Summary struct {
	Profiled int
	Failed   int
	Skipped  int // unrouted items plus items never attempted after cancellation
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

// criterionResp mirrors types.Criterion with a pointer score so a missing
// score field is distinguishable from an explicit zero.
type criterionResp struct {
	Score *int   `json:"score"`
	Notes string `json:"notes"`
}

// response is the per-item profiling schema. Pointer fields distinguish
// missing keys from empty values.
type response struct {
	Criteria *struct {
		Extractability   *criterionResp `json:"extractability"`
		EvidenceDensity  *criterionResp `json:"evidence_density"`
		ScopeClarity     *criterionResp `json:"scope_clarity"`
		AuthoritySignals *criterionResp `json:"authority_signals"`
		Freshness        *criterionResp `json:"freshness"`
	} `json:"criteria"`
	Brief          *string   `json:"brief"`
	TargetKeywords *[]string `json:"target_keywords"`
}

// All profiles every routed sub-query and returns the same sequence with
// either a profiling result or a failure record attached to each attempted
// item. Unrouted items pass through untouched. Output cardinality always
// equals input cardinality. Items run through a bounded worker pool
// (cfg.Workers, default sequential); cancellation is checked between items,
// never mid-call.
func All(ctx context.Context, gen genai.Client, ret retrieval.Client, location string, subs []types.SubQuery, cfg types.ProfilingConfig, w io.Writer) ([]types.SubQuery, Summary) {
	w = &syncWriter{w: w}
	out := make([]types.SubQuery, len(subs))
	copy(out, subs)

	topResults := cfg.TopResults
	if topResults <= 0 {
		topResults = defaultTopResults
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
		if !out[i].Routed() {
			continue
		}
		i := i
		g.Go(func() error {
			profileOne(gctx, gen, ret, location, &out[i], topResults, cfg, w)
			return nil
		})
	}
	_ = g.Wait() // failures are captured on the items

	var summary Summary
	for _, sq := range out {
		switch {
		case sq.Profile != nil:
			summary.Profiled++
		case sq.ProfileFailure != nil:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	fmt.Fprintf(w, "profiling: %d profiled, %d failed, %d skipped\n",
		summary.Profiled, summary.Failed, summary.Skipped)
	return out, summary
}

// profileOne annotates a single sub-query in place: search, fetch, analyze.
func profileOne(ctx context.Context, gen genai.Client, ret retrieval.Client, location string, sq *types.SubQuery, topResults int, cfg types.ProfilingConfig, w io.Writer) {
	pages, err := ret.SearchAndFetch(ctx, sq.Text, location, topResults)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", sq.ID, err)
		sq.ProfileFailure = &types.ItemFailure{
			Stage:    types.StageProfiling,
			Reason:   retrievalReason(err),
			Detail:   err.Error(),
			Attempts: 1,
		}
		return
	}

	prompt, err := renderPrompt(promptData{Query: sq.Text, Pages: pages})
	if err != nil {
		sq.ProfileFailure = &types.ItemFailure{
			Stage:  types.StageProfiling,
			Reason: types.ReasonMalformed,
			Detail: fmt.Sprintf("rendering prompt: %v", err),
		}
		return
	}

	var result types.ProfilingResult
	parse := func(raw []byte) error {
		var resp response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		criteria, err := resp.criteria()
		if err != nil {
			return err
		}
		if resp.Brief == nil || strings.TrimSpace(*resp.Brief) == "" {
			return fmt.Errorf("missing or empty brief")
		}
		result = types.ProfilingResult{
			Criteria: criteria,
			Brief:    strings.TrimSpace(*resp.Brief),
		}
		if resp.TargetKeywords != nil {
			for _, kw := range *resp.TargetKeywords {
				if kw = strings.TrimSpace(kw); kw != "" {
					result.TargetKeywords = append(result.TargetKeywords, kw)
				}
			}
		}
		return nil
	}

	req := genai.Request{Prompt: prompt, Schema: genai.SchemaProfile, CallID: "profile-" + sq.ID}
	attempts, err := genai.GenerateParsed(ctx, gen, req, cfg.Retries(), parse)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", sq.ID, err)
		sq.ProfileFailure = &types.ItemFailure{
			Stage:    types.StageProfiling,
			Reason:   genai.FailureReasonFor(err),
			Detail:   err.Error(),
			Attempts: attempts,
		}
		return
	}

	result.Competitors = make([]types.CompetitorPage, len(pages))
	for i, p := range pages {
		result.Competitors[i] = types.CompetitorPage{Rank: p.Rank, URL: p.URL, Title: p.Title}
	}
	fmt.Fprintf(w, "profiled %s: %d competitors\n", sq.ID, len(pages))
	sq.Profile = &result
}

// criteria validates the five fixed axes and converts them to the domain type.
func (r *response) criteria() (types.Criteria, error) {
	var out types.Criteria
	if r.Criteria == nil {
		return out, fmt.Errorf("missing criteria object")
	}
	axes := []struct {
		name string
		resp *criterionResp
		dst  *types.Criterion
	}{
		{"extractability", r.Criteria.Extractability, &out.Extractability},
		{"evidence_density", r.Criteria.EvidenceDensity, &out.EvidenceDensity},
		{"scope_clarity", r.Criteria.ScopeClarity, &out.ScopeClarity},
		{"authority_signals", r.Criteria.AuthoritySignals, &out.AuthoritySignals},
		{"freshness", r.Criteria.Freshness, &out.Freshness},
	}
	for _, a := range axes {
		if a.resp == nil || a.resp.Score == nil {
			return out, fmt.Errorf("missing criterion %q", a.name)
		}
		score := *a.resp.Score
		if score < 0 || score > 10 {
			return out, fmt.Errorf("criterion %q score %d out of range [0, 10]", a.name, score)
		}
		*a.dst = types.Criterion{Score: score, Notes: strings.TrimSpace(a.resp.Notes)}
	}
	return out, nil
}

// retrievalReason maps a retrieval error kind to a failure reason.
func retrievalReason(err error) types.FailureReason {
	switch {
	case retrieval.IsKind(err, retrieval.KindNoResults):
		return types.ReasonNoCompetitors
	case retrieval.IsKind(err, retrieval.KindBlocked):
		return types.ReasonBlocked
	default:
		return types.ReasonFetchFailed
	}
}
