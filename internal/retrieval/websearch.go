// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/internal/httputil"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// searchAPIBase is the web search API endpoint. Package-level var for test
// substitution.
var searchAPIBase = "https://api.search.brave.com/res/v1/web/search"

const defaultMaxPageBytes = 10000

// WebClient implements Client against a JSON web-search API plus direct
// page fetches with HTML stripping.
type WebClient struct {
	cfg     types.RetrievalConfig
	client  *http.Client
	ledger  *costs.Ledger
	limiter *rate.Limiter
}

// NewWebClient builds the production retrieval client. All ledger entries
// it records carry the profiling stage tag, since Stage 3 is the only
// consumer of retrieval.
func NewWebClient(cfg types.RetrievalConfig, ledger *costs.Ledger) *WebClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	return &WebClient{
		cfg:     cfg,
		client:  httputil.NewClient(cfg.HTTPConfig),
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// searchHit is one ranked result from the search API.
type searchHit struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// searchResponse is the subset of the search API response we consume.
type searchResponse struct {
	Web struct {
		Results []searchHit `json:"results"`
	} `json:"web"`
}

// SearchAndFetch runs one search, fetches the top pages, and returns their
// extracted text in rank order. Individual page fetch failures are
// tolerated as long as at least one page survives; zero surviving pages is
// a fetch_failed error. The call cost — one search credit plus one credit
// per fetched page — is recorded before returning.
func (c *WebClient) SearchAndFetch(ctx context.Context, query, location string, limit int) ([]PageContent, error) {
	if limit <= 0 {
		limit = 3
	}

	searched := query
	if location != "" {
		searched = query + " " + location
	}

	results, err := c.search(ctx, searched, limit)
	if err != nil {
		c.ledger.Record(types.StageProfiling, "search:"+query, c.cfg.CreditCost)
		return nil, err
	}
	if len(results) == 0 {
		c.ledger.Record(types.StageProfiling, "search:"+query, c.cfg.CreditCost)
		return nil, &Error{Kind: KindNoResults, Query: query, Err: fmt.Errorf("search returned no results")}
	}

	var pages []PageContent
	var lastFetchErr error
	for i, r := range results {
		if i >= limit {
			break
		}
		text, err := c.fetchPage(ctx, r.URL)
		if err != nil {
			lastFetchErr = err
			continue
		}
		pages = append(pages, PageContent{
			Rank:  i + 1,
			URL:   r.URL,
			Title: r.Title,
			Text:  text,
		})
	}

	cost := c.cfg.CreditCost * float64(1+len(pages))
	c.ledger.Record(types.StageProfiling, "search:"+query, cost)

	if len(pages) == 0 {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: fmt.Errorf("no page could be fetched: %w", lastFetchErr)}
	}
	return pages, nil
}

// search calls the search API and returns the ranked result list.
func (c *WebClient) search(ctx context.Context, query string, limit int) ([]searchHit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: err}
	}

	u, err := url.Parse(searchAPIBase)
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: err}
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindBlocked, Query: query, Err: fmt.Errorf("search API returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: fmt.Errorf("search API returned %d", resp.StatusCode)}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, &Error{Kind: KindFetchFailed, Query: query, Err: fmt.Errorf("decoding search response: %w", err)}
	}
	return sr.Web.Results, nil
}

// fetchPage downloads one URL, strips HTML to plain text, and truncates.
func (c *WebClient) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: http %d", pageURL, resp.StatusCode)
	}

	maxBytes := c.cfg.MaxPageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxPageBytes
	}

	// Read more than the cap so stripping markup still leaves enough text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)*8))
	if err != nil {
		return "", err
	}

	text := stripHTML(string(body))
	if len(text) > maxBytes {
		text = text[:maxBytes]
	}
	return text, nil
}

var (
	reScript     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reChrome     = regexp.MustCompile(`(?is)<(nav|header|footer)[^>]*>.*?</(nav|header|footer)>`)
	reTags       = regexp.MustCompile(`<[^>]+>`)
	reSpaces     = regexp.MustCompile(`[ \t]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes scripts, styles, and page chrome, then all tags.
func stripHTML(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reChrome.ReplaceAllString(s, "")
	s = reTags.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
