// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/httputil"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// geminiAPIBase is the Gemini API endpoint. Package-level var for test
// substitution.
var geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// modelPricing maps a model to its dollar cost per input/output token.
// Unknown models record zero cost.
var modelPricing = map[string]struct{ in, out float64 }{
	"gemini-1.5-flash-latest": {0.35 / 1e6, 1.05 / 1e6},
	"gemini-1.5-pro-latest":   {1.25 / 1e6, 5.00 / 1e6},
}

// Gemini calls the Gemini generateContent API with JSON output forced.
type Gemini struct {
	cfg     types.AIConfig
	client  *http.Client
	ledger  *costs.Ledger
	stage   types.Stage
	limiter *rate.Limiter
}

// NewGemini builds a Gemini client for one stage. The stage tags every
// ledger entry the client records.
func NewGemini(cfg types.AIConfig, stage types.Stage, ledger *costs.Ledger) *Gemini {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	return &Gemini{
		cfg:     cfg,
		client:  httputil.NewClient(cfg.HTTPConfig),
		ledger:  ledger,
		stage:   stage,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	ResponseMIMEType string `json:"response_mime_type"`
}

// geminiResponse is the generateContent response body.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate sends one prompt and returns the model's JSON payload. The call
// cost is recorded in the ledger before returning, on success and failure
// alike; failed calls record zero cost because usage is unknown.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Response{}, &Error{Kind: KindTransient, CallID: req.CallID, Err: err}
	}

	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		g.ledger.Record(g.stage, req.CallID, 0)
		return Response{}, &Error{Kind: KindMalformed, CallID: req.CallID, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", geminiAPIBase, g.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		g.ledger.Record(g.stage, req.CallID, 0)
		return Response{}, &Error{Kind: KindTransient, CallID: req.CallID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)
	if g.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", g.cfg.UserAgent)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.ledger.Record(g.stage, req.CallID, 0)
		return Response{}, &Error{Kind: KindTransient, CallID: req.CallID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.ledger.Record(g.stage, req.CallID, 0)
		gerr := &Error{
			Kind:   KindTransient,
			CallID: req.CallID,
			Err:    fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			gerr.Kind = KindQuota
			gerr.RetryAfter = httputil.RetryAfter(resp)
		}
		return Response{}, gerr
	}

	var gResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		g.ledger.Record(g.stage, req.CallID, 0)
		return Response{}, &Error{Kind: KindMalformed, CallID: req.CallID, Err: fmt.Errorf("decoding response: %w", err)}
	}

	g.ledger.Record(g.stage, req.CallID, g.callCost(gResp))

	text := firstText(gResp)
	if text == "" {
		return Response{}, &Error{Kind: KindMalformed, CallID: req.CallID, Err: fmt.Errorf("no text content in response")}
	}
	if !json.Valid([]byte(text)) {
		return Response{}, &Error{Kind: KindMalformed, CallID: req.CallID, Err: fmt.Errorf("response is not valid JSON for schema %s", req.Schema)}
	}

	return Response{
		Raw:          []byte(text),
		InputTokens:  gResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// callCost computes the dollar cost of one call from token usage.
func (g *Gemini) callCost(resp geminiResponse) float64 {
	pricing, ok := modelPricing[g.cfg.Model]
	if !ok {
		return 0
	}
	in := float64(resp.UsageMetadata.PromptTokenCount) * pricing.in
	out := float64(resp.UsageMetadata.CandidatesTokenCount) * pricing.out
	return in + out
}

// firstText returns the first text part of the first candidate.
func firstText(resp geminiResponse) string {
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}
