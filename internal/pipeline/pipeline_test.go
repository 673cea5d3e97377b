package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/expand"
	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/internal/httputil"
	"github.com/pdiddy/fanout-engine/internal/plan"
	"github.com/pdiddy/fanout-engine/internal/retrieval"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// scriptedGen answers by call ID; unmatched IDs get the default response.
type scriptedGen struct {
	mu        sync.Mutex
	byCallID  map[string]string
	errByID   map[string]error
	defaultTo string
}

func (s *scriptedGen) Generate(_ context.Context, req genai.Request) (genai.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errByID[req.CallID]; ok {
		return genai.Response{}, err
	}
	if raw, ok := s.byCallID[req.CallID]; ok {
		return genai.Response{Raw: []byte(raw)}, nil
	}
	return genai.Response{Raw: []byte(s.defaultTo)}, nil
}

type fakeRetrieval struct{}

func (fakeRetrieval) SearchAndFetch(_ context.Context, query, _ string, _ int) ([]retrieval.PageContent, error) {
	return []retrieval.PageContent{
		{Rank: 1, URL: "https://a.example/" + strings.ReplaceAll(query, " ", "-"), Title: "A", Text: "content"},
	}, nil
}

// expansionJSON builds a four-category expansion response with n sub-queries.
func expansionJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"text": "sub-query %d", "latent_intent": "intent %d"}`, i+1, (i/3)+1)
	}
	return fmt.Sprintf(`{
		"slot_queries": [%s],
		"latent_intents": [%s],
		"rewrites": [],
		"follow_up_questions": []
	}`, strings.Join(items[:n/2], ","), strings.Join(items[n/2:], ","))
}

const routingJSON = `{"source_types": ["blog"], "modalities": ["table"]}`

const profileJSON = `{
	"criteria": {
		"extractability": {"score": 7, "notes": "n"},
		"evidence_density": {"score": 5, "notes": "n"},
		"scope_clarity": {"score": 8, "notes": "n"},
		"authority_signals": {"score": 4, "notes": "n"},
		"freshness": {"score": 6, "notes": "n"}
	},
	"brief": "Write the definitive guide.",
	"target_keywords": ["guide"]
}`

func testConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Expansion: types.ExpansionConfig{AIConfig: types.AIConfig{MaxRetries: 1}},
		Routing:   types.RoutingConfig{AIConfig: types.AIConfig{MaxRetries: 1}, Workers: 4},
		Profiling: types.ProfilingConfig{AIConfig: types.AIConfig{MaxRetries: 1}, Workers: 4},
	}
}

func testPipeline(gen genai.Client, ledger *costs.Ledger) *Pipeline {
	p := New(gen, gen, gen, fakeRetrieval{}, ledger, testConfig(), io.Discard)
	p.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	p.newID = func() string { return "run-test" }
	return p
}

func TestExecuteHappyPathWithPartialFailures(t *testing.T) {
	// 12 sub-queries; two fail routing, the rest are profiled.
	quota := &genai.Error{Kind: genai.KindQuota, Err: errors.New("out of quota")}
	gen := &scriptedGen{
		byCallID: map[string]string{"expand": expansionJSON(12)},
		errByID: map[string]error{
			"route-sq-003": quota,
			"route-sq-007": quota,
		},
		defaultTo: routingJSON,
	}
	for i := 1; i <= 12; i++ {
		gen.byCallID[fmt.Sprintf("profile-sq-%03d", i)] = profileJSON
	}

	ledger := costs.NewLedger()
	run, err := testPipeline(gen, ledger).Execute(context.Background(), "best half marathon training plan", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if run.Status != types.StatusDone {
		t.Errorf("status = %q, want done", run.Status)
	}
	if len(run.SubQueries) != 12 {
		t.Fatalf("len(sub-queries) = %d, want 12", len(run.SubQueries))
	}
	if got := len(run.Profiled()); got != 10 {
		t.Errorf("profiled = %d, want 10", got)
	}
	if got := len(run.Failures()); got != 2 {
		t.Errorf("failures = %d, want 2", got)
	}
	for _, id := range []string{"sq-003", "sq-007"} {
		var found *types.SubQuery
		for i := range run.SubQueries {
			if run.SubQueries[i].ID == id {
				found = &run.SubQueries[i]
			}
		}
		if found == nil || found.RoutingFailure == nil {
			t.Errorf("%s missing routing failure", id)
			continue
		}
		if found.Profile != nil || found.ProfileFailure != nil {
			t.Errorf("%s was profiled despite failing routing", id)
		}
	}
	if run.FinishedAt.IsZero() {
		t.Errorf("finished_at not stamped")
	}
}

func TestExecuteEmptyExpansionFails(t *testing.T) {
	gen := &scriptedGen{byCallID: map[string]string{
		"expand": `{"slot_queries": [], "latent_intents": [], "rewrites": [], "follow_up_questions": []}`,
	}}

	run, err := testPipeline(gen, costs.NewLedger()).Execute(context.Background(), "q", "")
	if !errors.Is(err, expand.ErrEmptyExpansion) {
		t.Fatalf("err = %v, want ErrEmptyExpansion", err)
	}
	if run.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if len(run.SubQueries) != 0 {
		t.Errorf("failed run carries %d sub-queries", len(run.SubQueries))
	}
}

func TestExecuteEmptyQueryFails(t *testing.T) {
	run, err := testPipeline(&scriptedGen{}, costs.NewLedger()).Execute(context.Background(), "   ", "")
	if err == nil {
		t.Fatalf("want error for empty query")
	}
	if run.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
}

func TestExecuteAllRoutingFailedSkipsProfiling(t *testing.T) {
	transient := &genai.Error{Kind: genai.KindTransient, Err: errors.New("down")}
	gen := &scriptedGen{byCallID: map[string]string{"expand": expansionJSON(4)}}
	gen.errByID = map[string]error{}
	for i := 1; i <= 4; i++ {
		gen.errByID[fmt.Sprintf("route-sq-%03d", i)] = transient
	}

	// The stages serialize worker progress, so a plain Builder is fine
	// even with parallel workers.
	var progress strings.Builder
	p := testPipeline(gen, costs.NewLedger())
	p.Progress = &progress

	run, err := p.Execute(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != types.StatusDone {
		t.Errorf("status = %q, want done (partial failure is not run failure)", run.Status)
	}
	for _, sq := range run.SubQueries {
		if sq.Profile != nil || sq.ProfileFailure != nil {
			t.Errorf("%s attempted profiling without a routing decision", sq.ID)
		}
	}
	if !strings.Contains(progress.String(), "profiling skipped") {
		t.Errorf("progress missing profiling skip notice")
	}
}

func TestExecuteEmbedsCostSummary(t *testing.T) {
	gen := &scriptedGen{
		byCallID:  map[string]string{"expand": expansionJSON(2)},
		defaultTo: routingJSON,
	}
	gen.byCallID["profile-sq-001"] = profileJSON
	gen.byCallID["profile-sq-002"] = profileJSON

	ledger := costs.NewLedger()
	ledger.Record(types.StageExpansion, "expand", 0.25)
	ledger.Record(types.StageProfiling, "search:q", 0.5)

	run, err := testPipeline(gen, ledger).Execute(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Costs.Total != 0.75 {
		t.Errorf("costs total = %v, want 0.75", run.Costs.Total)
	}
	if len(run.Costs.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(run.Costs.Entries))
	}
}

func TestSaveLoadRunRoundTrip(t *testing.T) {
	gen := &scriptedGen{
		byCallID:  map[string]string{"expand": expansionJSON(6)},
		defaultTo: routingJSON,
	}
	for i := 1; i <= 6; i++ {
		gen.byCallID[fmt.Sprintf("profile-sq-%03d", i)] = profileJSON
	}

	run, err := testPipeline(gen, costs.NewLedger()).Execute(context.Background(), "q", "Toronto")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	path := RunArtifactPath(t.TempDir(), run.StartedAt)
	if err := SaveRun(run, path); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	loaded, err := LoadRun(path)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}

	if !reflect.DeepEqual(run, loaded) {
		a, _ := json.Marshal(run)
		b, _ := json.Marshal(loaded)
		t.Fatalf("round trip lost data:\n saved  %s\n loaded %s", a, b)
	}
	// The plan regenerates identically from the artifact alone.
	if !reflect.DeepEqual(plan.Cluster(run), plan.Cluster(loaded)) {
		t.Errorf("pillars differ after round trip")
	}
	if plan.RenderReport(run) != plan.RenderReport(loaded) {
		t.Errorf("report differs after round trip")
	}
}

func TestArtifactPaths(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cases := map[string]string{
		RunArtifactPath("outputs", ts):    "outputs/fanout-run-20260314-092653.json",
		ReportArtifactPath("outputs", ts): "outputs/fanout-plan-20260314-092653.md",
		CostsArtifactPath("outputs", ts):  "outputs/fanout-costs-20260314-092653.yaml",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
	}
}
