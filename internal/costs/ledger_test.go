package costs

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

func TestLedgerTotalEqualsSumOfEntries(t *testing.T) {
	l := NewLedger()
	l.Record(types.StageExpansion, "expand-1", 0.002)
	l.Record(types.StageRouting, "route-sq-001", 0.001)
	l.Record(types.StageRouting, "route-sq-002", 0.003)
	l.Record(types.StageProfiling, "profile-sq-001", 0.05)

	want := 0.002 + 0.001 + 0.003 + 0.05
	if got := l.Total(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Total() = %f, want %f", got, want)
	}

	var sum float64
	for _, e := range l.Entries() {
		sum += e.Cost
	}
	if math.Abs(sum-l.Total()) > 1e-12 {
		t.Errorf("sum of entries %f != Total() %f", sum, l.Total())
	}
}

func TestLedgerByStage(t *testing.T) {
	l := NewLedger()
	l.Record(types.StageRouting, "route-sq-001", 0.001)
	l.Record(types.StageRouting, "route-sq-002", 0.002)
	l.Record(types.StageProfiling, "profile-sq-001", 0.01)

	byStage := l.ByStage()
	if math.Abs(byStage[types.StageRouting]-0.003) > 1e-12 {
		t.Errorf("routing = %f, want 0.003", byStage[types.StageRouting])
	}
	if math.Abs(byStage[types.StageProfiling]-0.01) > 1e-12 {
		t.Errorf("profiling = %f, want 0.01", byStage[types.StageProfiling])
	}
}

func TestLedgerNegativeCostClamped(t *testing.T) {
	l := NewLedger()
	l.Record(types.StageExpansion, "expand-1", -5)
	if got := l.Total(); got != 0 {
		t.Errorf("Total() = %f, want 0", got)
	}
}

// Total must be independent of call ordering and parallelism.
func TestLedgerConcurrentRecorders(t *testing.T) {
	l := NewLedger()

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				l.Record(types.StageProfiling, "profile", 0.01)
			}
		}()
	}
	wg.Wait()

	want := float64(workers*perWorker) * 0.01
	if got := l.Total(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Total() = %f, want %f", got, want)
	}
	if got := len(l.Entries()); got != workers*perWorker {
		t.Errorf("len(Entries()) = %d, want %d", got, workers*perWorker)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	l := NewLedger()
	l.Record(types.StageExpansion, "expand-1", 0.002)
	l.Record(types.StageProfiling, "profile-sq-001", 0.05)

	path := filepath.Join(t.TempDir(), "costs.yaml")
	if err := WriteSummary(path, l.Summary()); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if math.Abs(got.Total-l.Total()) > 1e-12 {
		t.Errorf("round-tripped total = %f, want %f", got.Total, l.Total())
	}
	if len(got.Entries) != 2 {
		t.Errorf("round-tripped entries = %d, want 2", len(got.Entries))
	}
}

func TestFormatSummary(t *testing.T) {
	l := NewLedger()
	l.Record(types.StageExpansion, "expand-1", 0.002)
	l.Record(types.StageRouting, "route-sq-001", 0.001)

	var buf bytes.Buffer
	FormatSummary(l.Summary(), &buf)

	out := buf.String()
	for _, want := range []string{"expansion", "routing", "total", "$0.003000"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}
