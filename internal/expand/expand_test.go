package expand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/fanout-engine/internal/genai"
	"github.com/pdiddy/fanout-engine/internal/httputil"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// --- mock client ---

type mockClient struct {
	responses []string // returned in order; last repeats
	errs      []error  // parallel to responses; nil means success
	calls     int
	prompts   []string
}

func (m *mockClient) Generate(_ context.Context, req genai.Request) (genai.Response, error) {
	m.prompts = append(m.prompts, req.Prompt)
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	if m.errs != nil && m.errs[i] != nil {
		return genai.Response{}, m.errs[i]
	}
	return genai.Response{Raw: []byte(m.responses[i])}, nil
}

const fullResponse = `{
	"slot_queries": [
		{"text": "half marathon training plan for beginners over 40", "latent_intent": "age-appropriate load"}
	],
	"latent_intents": [
		{"text": "how to avoid shin splints", "latent_intent": "injury prevention"},
		{"text": "hydration strategies for beginners", "latent_intent": "race-day preparation"}
	],
	"rewrites": [
		{"text": "easy half marathon training plan", "latent_intent": "low-effort plan"}
	],
	"follow_up_questions": [
		{"text": "what shoes are best for half marathon training?", "latent_intent": "gear selection"}
	]
}`

func testExpansionConfig() types.ExpansionConfig {
	return types.ExpansionConfig{AIConfig: types.AIConfig{MaxRetries: 2}}
}

func TestExpandAssignsOrderedIDsAndOrigins(t *testing.T) {
	c := &mockClient{responses: []string{fullResponse}}

	subs, err := Expand(context.Background(), c, "best half marathon training plan for beginners", "", testExpansionConfig(), io.Discard)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(subs) != 5 {
		t.Fatalf("len(subs) = %d, want 5", len(subs))
	}

	wantOrigins := []types.Origin{
		types.OriginSlot, types.OriginLatent, types.OriginLatent,
		types.OriginRewrite, types.OriginFollowup,
	}
	for i, sq := range subs {
		wantID := fmt.Sprintf("sq-%03d", i+1)
		if sq.ID != wantID {
			t.Errorf("subs[%d].ID = %q, want %q", i, sq.ID, wantID)
		}
		if sq.Origin != wantOrigins[i] {
			t.Errorf("subs[%d].Origin = %q, want %q", i, sq.Origin, wantOrigins[i])
		}
		if sq.LatentIntent == "" {
			t.Errorf("subs[%d] missing latent intent", i)
		}
	}
}

func TestExpandEmptyCategoriesAllowedExplicitly(t *testing.T) {
	c := &mockClient{responses: []string{`{
		"slot_queries": [],
		"latent_intents": [{"text": "only one", "latent_intent": "x"}],
		"rewrites": [],
		"follow_up_questions": []
	}`}}

	subs, err := Expand(context.Background(), c, "q", "", testExpansionConfig(), io.Discard)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("len(subs) = %d, want 1", len(subs))
	}
}

func TestExpandMissingCategoryGetsStrictRetry(t *testing.T) {
	// First response drops the rewrites key entirely; the retry fixes it.
	c := &mockClient{responses: []string{
		`{"slot_queries": [], "latent_intents": [], "follow_up_questions": []}`,
		fullResponse,
	}}

	subs, err := Expand(context.Background(), c, "q", "", testExpansionConfig(), io.Discard)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
	if !strings.Contains(c.prompts[1], "REMINDER") {
		t.Errorf("second prompt missing strict reminder")
	}
	if len(subs) != 5 {
		t.Errorf("len(subs) = %d, want 5", len(subs))
	}
}

func TestExpandAllCategoriesEmptyIsFatal(t *testing.T) {
	c := &mockClient{responses: []string{`{
		"slot_queries": [], "latent_intents": [], "rewrites": [], "follow_up_questions": []
	}`}}

	_, err := Expand(context.Background(), c, "q", "", testExpansionConfig(), io.Discard)
	if !errors.Is(err, ErrEmptyExpansion) {
		t.Fatalf("err = %v, want ErrEmptyExpansion", err)
	}
}

func TestExpandBlankTextsAreDropped(t *testing.T) {
	c := &mockClient{responses: []string{`{
		"slot_queries": [{"text": "   ", "latent_intent": "x"}],
		"latent_intents": [], "rewrites": [], "follow_up_questions": []
	}`}}

	_, err := Expand(context.Background(), c, "q", "", testExpansionConfig(), io.Discard)
	if !errors.Is(err, ErrEmptyExpansion) {
		t.Fatalf("err = %v, want ErrEmptyExpansion for whitespace-only drafts", err)
	}
}

func TestExpandSoftCap(t *testing.T) {
	c := &mockClient{responses: []string{fullResponse}}
	cfg := testExpansionConfig()
	cfg.MaxSubQueries = 2

	subs, err := Expand(context.Background(), c, "q", "", cfg, io.Discard)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len(subs) = %d, want 2", len(subs))
	}
	// Deterministic trim: category order, so the slot query survives.
	if subs[0].Origin != types.OriginSlot || subs[1].Origin != types.OriginLatent {
		t.Errorf("capped origins = %q, %q", subs[0].Origin, subs[1].Origin)
	}
}

func TestExpandTransientFailureExhaustsRetries(t *testing.T) {
	transient := &genai.Error{Kind: genai.KindTransient, CallID: "expand", Err: errors.New("timeout")}
	c := &mockClient{
		responses: []string{""},
		errs:      []error{transient},
	}

	_, err := Expand(context.Background(), c, "q", "", testExpansionConfig(), io.Discard)
	if err == nil || !genai.IsKind(err, genai.KindTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	// 1 initial + 2 retries.
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
}

func TestExpandPromptRequestsFourCategories(t *testing.T) {
	c := &mockClient{responses: []string{fullResponse}}
	if _, err := Expand(context.Background(), c, "best running shoes", "Toronto", testExpansionConfig(), io.Discard); err != nil {
		t.Fatalf("Expand: %v", err)
	}

	prompt := c.prompts[0]
	for _, want := range []string{
		"Slot identification", "Latent concept projection",
		"Rewrites and diversifications", "Follow-up questions",
		`"best running shoes"`, `"Toronto"`,
		"slot_queries", "latent_intents", "rewrites", "follow_up_questions",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
