// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for the fan-out pipeline:
// the Run aggregate, its SubQueries and stage results, content pillars,
// and cost entries.
package types

import "time"

// RunStatus tracks the pipeline state machine. A run moves through the
// stage statuses in order and terminates in StatusDone or StatusFailed.
// StatusFailed is reachable only before routing begins; later stages
// degrade to partial success instead.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusExpanding  RunStatus = "expanding"
	StatusRouting    RunStatus = "routing"
	StatusProfiling  RunStatus = "profiling"
	StatusClustering RunStatus = "clustering"
	StatusDone       RunStatus = "done"
	StatusFailed     RunStatus = "failed"
)

// Stage identifies a pipeline stage on cost entries and item failures.
type Stage string

const (
	StageExpansion Stage = "expansion"
	StageRouting   Stage = "routing"
	StageProfiling Stage = "profiling"
)

// Origin tags which expansion category produced a sub-query.
type Origin string

const (
	OriginSlot     Origin = "slot"
	OriginLatent   Origin = "latent"
	OriginRewrite  Origin = "rewrite"
	OriginFollowup Origin = "followup"
)

// Run is the root aggregate for a single fan-out execution. It is mutated
// only by the pipeline orchestrator and treated as read-only once persisted.
type Run struct {
	ID         string      `json:"id" yaml:"id"`
	Query      string      `json:"query" yaml:"query"`
	Location   string      `json:"location,omitempty" yaml:"location,omitempty"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
	Status     RunStatus   `json:"status" yaml:"status"`
	SubQueries []SubQuery  `json:"sub_queries" yaml:"sub_queries"`
	Costs      CostSummary `json:"costs" yaml:"costs"`
}

// Profiled returns the sub-queries that carry a successful profiling result,
// in ID order. These are the clustering inputs.
func (r *Run) Profiled() []SubQuery {
	var out []SubQuery
	for _, sq := range r.SubQueries {
		if sq.Profile != nil {
			out = append(out, sq)
		}
	}
	return out
}

// Failures returns every sub-query that recorded an item failure in any
// stage. Items a cancelled run never attempted carry no failure record and
// are not returned here; the report treats any unprofiled sub-query as a gap.
func (r *Run) Failures() []SubQuery {
	var out []SubQuery
	for _, sq := range r.SubQueries {
		if sq.RoutingFailure != nil || sq.ProfileFailure != nil {
			out = append(out, sq)
		}
	}
	return out
}

// SubQuery is one fanned-out query. For each stage that attempted the item,
// exactly one of the result or failure fields is set; both nil means the
// stage never ran for it (predecessor failed or the run was cancelled).
type SubQuery struct {
	ID           string `json:"id" yaml:"id"`
	Text         string `json:"text" yaml:"text"`
	Origin       Origin `json:"origin" yaml:"origin"`
	LatentIntent string `json:"latent_intent,omitempty" yaml:"latent_intent,omitempty"`

	Routing        *Routing     `json:"routing,omitempty" yaml:"routing,omitempty"`
	RoutingFailure *ItemFailure `json:"routing_failure,omitempty" yaml:"routing_failure,omitempty"`

	Profile        *ProfilingResult `json:"profile,omitempty" yaml:"profile,omitempty"`
	ProfileFailure *ItemFailure     `json:"profile_failure,omitempty" yaml:"profile_failure,omitempty"`
}

// Routed reports whether the sub-query has a successful routing decision.
func (s SubQuery) Routed() bool { return s.Routing != nil }

// Routing is the Stage 2 decision: where answers for the sub-query live and
// in what shape. Both sets are non-empty on a successful routing.
type Routing struct {
	SourceTypes []string `json:"source_types" yaml:"source_types"`
	Modalities  []string `json:"modalities" yaml:"modalities"`
}

// FailureReason is the machine-readable tag on an ItemFailure.
type FailureReason string

const (
	ReasonTransient     FailureReason = "transient"
	ReasonMalformed     FailureReason = "malformed_response"
	ReasonQuota         FailureReason = "quota"
	ReasonNoCompetitors FailureReason = "no_competitors"
	ReasonFetchFailed   FailureReason = "fetch_failed"
	ReasonBlocked       FailureReason = "blocked"
)

// ItemFailure records a per-sub-query stage failure. Failures are data,
// not errors: they ride on the SubQuery into the report, where the item
// is listed as a gap instead of being silently dropped.
type ItemFailure struct {
	Stage    Stage         `json:"stage" yaml:"stage"`
	Reason   FailureReason `json:"reason" yaml:"reason"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Attempts int           `json:"attempts" yaml:"attempts"`
}

// CompetitorPage is one top-ranking page analyzed during profiling.
type CompetitorPage struct {
	Rank  int    `json:"rank" yaml:"rank"`
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Criterion is one scored axis of the ideal content profile.
// Scores are bounded to [0, 10].
type Criterion struct {
	Score int    `json:"score" yaml:"score"`
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Criteria holds the five fixed profiling axes. The set is fixed-cardinality:
// every profiling result scores exactly these five, never a subset and never
// under different names.
type Criteria struct {
	Extractability   Criterion `json:"extractability" yaml:"extractability"`
	EvidenceDensity  Criterion `json:"evidence_density" yaml:"evidence_density"`
	ScopeClarity     Criterion `json:"scope_clarity" yaml:"scope_clarity"`
	AuthoritySignals Criterion `json:"authority_signals" yaml:"authority_signals"`
	Freshness        Criterion `json:"freshness" yaml:"freshness"`
}

// ProfilingResult is the Stage 3 output for one sub-query: the competitor
// set that was analyzed, the five-criteria profile, and a synthesized brief
// describing content that would outrank the competitors.
type ProfilingResult struct {
	Competitors    []CompetitorPage `json:"competitors" yaml:"competitors"`
	Criteria       Criteria         `json:"criteria" yaml:"criteria"`
	Brief          string           `json:"brief" yaml:"brief"`
	TargetKeywords []string         `json:"target_keywords,omitempty" yaml:"target_keywords,omitempty"`
}

// ContentPillar is a cluster of related sub-queries treated as one strategic
// content unit. Pillar membership partitions the successfully profiled
// sub-queries: every profiled sub-query belongs to exactly one pillar.
// Pillars are recomputed from the Run, never persisted independently.
type ContentPillar struct {
	Label          string   `json:"label" yaml:"label"`
	MemberIDs      []string `json:"member_ids" yaml:"member_ids"`
	TargetKeywords []string `json:"target_keywords,omitempty" yaml:"target_keywords,omitempty"`
	Brief          string   `json:"brief" yaml:"brief"`
}

// CostEntry is one append-only ledger record for a single external call.
type CostEntry struct {
	Stage  Stage   `json:"stage" yaml:"stage"`
	CallID string  `json:"call_id" yaml:"call_id"`
	Cost   float64 `json:"cost" yaml:"cost"`
}

// CostSummary is the ledger rollup embedded in the persisted Run.
type CostSummary struct {
	Total   float64           `json:"total" yaml:"total"`
	ByStage map[Stage]float64 `json:"by_stage,omitempty" yaml:"by_stage,omitempty"`
	Entries []CostEntry       `json:"entries,omitempty" yaml:"entries,omitempty"`
}
