// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan turns a completed run into a content plan: it clusters the
// profiled sub-queries into pillars and renders the Markdown report. Both
// operations are pure functions of the Run, so a persisted run artifact
// always regenerates the same plan.
package plan

import (
	"sort"
	"strings"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

// stopwords are dropped before token overlap is measured. Generic query
// vocabulary would otherwise glue unrelated sub-queries together.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"for": true, "to": true, "in": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "is": true, "are": true, "be": true, "do": true,
	"does": true, "can": true, "how": true, "what": true, "which": true,
	"when": true, "where": true, "why": true, "who": true, "i": true,
	"you": true, "your": true, "my": true, "best": true, "top": true,
	"vs": true, "it": true, "that": true, "this": true, "should": true,
}

// pillarDraft accumulates cluster state during the greedy pass.
type pillarDraft struct {
	memberIDs   []string
	tokenCounts map[string]int
	tokenOrder  []string // first-seen order, for deterministic labels
	sourceTypes map[string]bool
	keywords    []string
	keywordSeen map[string]bool
	briefs      []string // member briefs in member order, duplicates dropped
	briefSeen   map[string]bool
}

// Cluster groups the successfully profiled sub-queries into content pillars
// by token overlap on their latent intents and texts, with a tie bonus for
// shared source types. The result partitions the profiled set: every
// profiled sub-query lands in exactly one pillar, and a pillar's brief
// merges every member's brief in member order. Iteration is in sub-query
// order and ties break toward the earliest pillar, so the output is a pure
// function of the Run.
func Cluster(run *types.Run) []types.ContentPillar {
	var drafts []*pillarDraft
	for _, sq := range run.Profiled() {
		toks := tokenize(sq.LatentIntent + " " + sq.Text)
		srcs := make(map[string]bool)
		if sq.Routing != nil {
			for _, s := range sq.Routing.SourceTypes {
				srcs[s] = true
			}
		}

		best, bestScore := -1, 0
		for i, d := range drafts {
			score := overlap(d, toks, srcs)
			if score > bestScore {
				best, bestScore = i, score
			}
		}

		if best < 0 {
			d := &pillarDraft{
				tokenCounts: make(map[string]int),
				sourceTypes: make(map[string]bool),
				keywordSeen: make(map[string]bool),
				briefSeen:   make(map[string]bool),
			}
			drafts = append(drafts, d)
			best = len(drafts) - 1
		}
		absorb(drafts[best], sq, toks, srcs)
	}

	pillars := make([]types.ContentPillar, len(drafts))
	for i, d := range drafts {
		pillars[i] = types.ContentPillar{
			Label:          label(d),
			MemberIDs:      d.memberIDs,
			TargetKeywords: d.keywords,
			Brief:          strings.Join(d.briefs, "\n\n"),
		}
	}
	return pillars
}

// overlap scores a candidate member against a pillar. At least one shared
// token is required to join; shared source types only break ties.
func overlap(d *pillarDraft, toks []string, srcs map[string]bool) int {
	shared := 0
	for _, t := range toks {
		if d.tokenCounts[t] > 0 {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	score := shared * 2
	for s := range srcs {
		if d.sourceTypes[s] {
			score++
			break
		}
	}
	return score
}

// absorb adds a profiled sub-query to a pillar draft.
func absorb(d *pillarDraft, sq types.SubQuery, toks []string, srcs map[string]bool) {
	d.memberIDs = append(d.memberIDs, sq.ID)
	for _, t := range toks {
		if d.tokenCounts[t] == 0 {
			d.tokenOrder = append(d.tokenOrder, t)
		}
		d.tokenCounts[t]++
	}
	for s := range srcs {
		d.sourceTypes[s] = true
	}
	for _, kw := range sq.Profile.TargetKeywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if key == "" || d.keywordSeen[key] {
			continue
		}
		d.keywordSeen[key] = true
		d.keywords = append(d.keywords, strings.TrimSpace(kw))
	}
	if b := strings.TrimSpace(sq.Profile.Brief); b != "" && !d.briefSeen[b] {
		d.briefSeen[b] = true
		d.briefs = append(d.briefs, b)
	}
}

// label names a pillar from its most shared tokens: up to three, ordered by
// frequency and then by first appearance.
func label(d *pillarDraft) string {
	toks := make([]string, len(d.tokenOrder))
	copy(toks, d.tokenOrder)
	firstSeen := make(map[string]int, len(toks))
	for i, t := range toks {
		firstSeen[t] = i
	}
	sort.SliceStable(toks, func(i, j int) bool {
		if d.tokenCounts[toks[i]] != d.tokenCounts[toks[j]] {
			return d.tokenCounts[toks[i]] > d.tokenCounts[toks[j]]
		}
		return firstSeen[toks[i]] < firstSeen[toks[j]]
	})
	if len(toks) > 3 {
		toks = toks[:3]
	}
	if len(toks) == 0 {
		return "general"
	}
	return strings.Join(toks, " ")
}

// tokenize lowercases, splits on non-alphanumerics, and drops stopwords
// and single-character fragments.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
