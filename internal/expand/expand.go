// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expand implements Stage 1: query expansion and latent intent
// mining. One generation call turns the original query into an ordered
// sequence of tagged sub-query drafts.
package expand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// ErrEmptyExpansion means the generation response parsed but yielded no
// sub-queries. This is fatal for the run.
var ErrEmptyExpansion = errors.New("expansion produced no sub-queries")

// responseItem is one sub-query draft as returned by the model.
type responseItem struct {
	Text         string `json:"text"`
	LatentIntent string `json:"latent_intent"`
}

// response is the Stage 1 output schema. Category slices are pointers so
// a missing key (nil) is distinguishable from an explicitly empty one.
type response struct {
	SlotQueries       *[]responseItem `json:"slot_queries"`
	LatentIntents     *[]responseItem `json:"latent_intents"`
	Rewrites          *[]responseItem `json:"rewrites"`
	FollowUpQuestions *[]responseItem `json:"follow_up_questions"`
}

// validate rejects responses that omit a category key. The contract is
// that absent categories are marked with an explicit empty array.
func (r response) validate() error {
	var missing []string
	if r.SlotQueries == nil {
		missing = append(missing, "slot_queries")
	}
	if r.LatentIntents == nil {
		missing = append(missing, "latent_intents")
	}
	if r.Rewrites == nil {
		missing = append(missing, "rewrites")
	}
	if r.FollowUpQuestions == nil {
		missing = append(missing, "follow_up_questions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing category keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Expand runs Stage 1 for the original query and returns the ordered
// sub-query drafts. Transient failures are retried per cfg; a schema
// violation gets one stricter retry. An error from Expand is fatal for
// the run.
func Expand(ctx context.Context, client genai.Client, query, location string, cfg types.ExpansionConfig, w io.Writer) ([]types.SubQuery, error) {
	prompt, err := renderPrompt(query, location)
	if err != nil {
		return nil, fmt.Errorf("rendering expansion prompt: %w", err)
	}

	var resp response
	parse := func(raw []byte) error {
		resp = response{}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		return resp.validate()
	}

	req := genai.Request{Prompt: prompt, Schema: genai.SchemaExpansion, CallID: "expand"}
	attempts, err := genai.GenerateParsed(ctx, client, req, cfg.Retries(), parse)
	if err != nil {
		return nil, fmt.Errorf("expansion failed after %d attempts: %w", attempts, err)
	}

	subs := collect(resp)
	if len(subs) == 0 {
		return nil, ErrEmptyExpansion
	}

	if cfg.MaxSubQueries > 0 && len(subs) > cfg.MaxSubQueries {
		fmt.Fprintf(w, "expansion capped at %d of %d sub-queries\n", cfg.MaxSubQueries, len(subs))
		subs = subs[:cfg.MaxSubQueries]
	}

	for i := range subs {
		subs[i].ID = fmt.Sprintf("sq-%03d", i+1)
	}

	fmt.Fprintf(w, "expanded %q into %d sub-queries\n", query, len(subs))
	return subs, nil
}

// collect flattens the four categories into one ordered draft list.
// Category order is fixed so sub-query IDs are deterministic for a given
// response.
func collect(resp response) []types.SubQuery {
	var subs []types.SubQuery
	appendAll := func(items *[]responseItem, origin types.Origin) {
		for _, item := range *items {
			text := strings.TrimSpace(item.Text)
			if text == "" {
				continue
			}
			subs = append(subs, types.SubQuery{
				Text:         text,
				Origin:       origin,
				LatentIntent: strings.TrimSpace(item.LatentIntent),
			})
		}
	}
	appendAll(resp.SlotQueries, types.OriginSlot)
	appendAll(resp.LatentIntents, types.OriginLatent)
	appendAll(resp.Rewrites, types.OriginRewrite)
	appendAll(resp.FollowUpQuestions, types.OriginFollowup)
	return subs
}
