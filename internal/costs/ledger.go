// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package costs accumulates the monetary cost of external API calls.
// The ledger is the only mutable state shared across pipeline stages, so
// it is safe under concurrent recorders.
package costs

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

// Ledger is an append-only record of per-call costs. Entries are never
// mutated after being recorded; totals are derived on read.
type Ledger struct {
	mu      sync.Mutex
	entries []types.CostEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends one cost entry. Negative costs are clamped to zero so a
// misbehaving backend can only under-report, never shrink the total.
func (l *Ledger) Record(stage types.Stage, callID string, cost float64) {
	if cost < 0 {
		cost = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, types.CostEntry{Stage: stage, CallID: callID, Cost: cost})
}

// Total returns the sum of all recorded entries.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, e := range l.entries {
		total += e.Cost
	}
	return total
}

// ByStage returns the per-stage cost rollup.
func (l *Ledger) ByStage() map[types.Stage]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[types.Stage]float64)
	for _, e := range l.entries {
		out[e.Stage] += e.Cost
	}
	return out
}

// Entries returns a copy of the recorded entries in append order.
func (l *Ledger) Entries() []types.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.CostEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summary returns the rollup embedded in the persisted Run.
func (l *Ledger) Summary() types.CostSummary {
	entries := l.Entries()
	byStage := make(map[types.Stage]float64)
	var total float64
	for _, e := range entries {
		byStage[e.Stage] += e.Cost
		total += e.Cost
	}
	// nil instead of empty keeps the persisted JSON free of empty fields
	// and lets a decoded summary compare equal to the original.
	if len(byStage) == 0 {
		byStage = nil
	}
	if len(entries) == 0 {
		entries = nil
	}
	return types.CostSummary{Total: total, ByStage: byStage, Entries: entries}
}

// FormatSummary writes a human-readable cost breakdown to w.
func FormatSummary(s types.CostSummary, w io.Writer) {
	fmt.Fprintln(w, "--- Cost Summary ---")

	stages := make([]string, 0, len(s.ByStage))
	for stage := range s.ByStage {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(w, "%-12s $%.6f\n", stage, s.ByStage[types.Stage(stage)])
	}

	fmt.Fprintf(w, "%-12s $%.6f (%d calls)\n", "total", s.Total, len(s.Entries))
}
