package retrieval

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/fanout-engine/internal/costs"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

func testRetrievalConfig() types.RetrievalConfig {
	return types.RetrievalConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   5 * time.Second,
			UserAgent: "test/0.1",
		},
		APIKey:            "search-key",
		RequestsPerSecond: 1000,
		CreditCost:        0.002,
		MaxPageBytes:      10000,
	}
}

// testSearchEnv wires a fake search API and two fake pages together.
func testSearchEnv(t *testing.T) (*WebClient, *costs.Ledger) {
	t.Helper()

	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			fmt.Fprint(w, `<html><head><style>p{}</style></head><body><p>Useful content here.</p></body></html>`)
		case "/broken":
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprint(w, "<p>other</p>")
		}
	}))
	t.Cleanup(pageSrv.Close)

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "search-key" {
			t.Errorf("token header = %q", got)
		}
		fmt.Fprintf(w, `{"web": {"results": [
			{"url": %q, "title": "Good page"},
			{"url": %q, "title": "Broken page"}
		]}}`, pageSrv.URL+"/good", pageSrv.URL+"/broken")
	}))
	t.Cleanup(searchSrv.Close)

	old := searchAPIBase
	searchAPIBase = searchSrv.URL
	t.Cleanup(func() { searchAPIBase = old })

	ledger := costs.NewLedger()
	return NewWebClient(testRetrievalConfig(), ledger), ledger
}

func TestSearchAndFetchToleratesPartialFetchFailures(t *testing.T) {
	c, ledger := testSearchEnv(t)

	pages, err := c.SearchAndFetch(context.Background(), "best running shoes", "", 3)
	if err != nil {
		t.Fatalf("SearchAndFetch: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1 (broken page tolerated)", len(pages))
	}
	if pages[0].Title != "Good page" || pages[0].Rank != 1 {
		t.Errorf("page = %+v", pages[0])
	}
	if strings.Contains(pages[0].Text, "<") {
		t.Errorf("text not stripped: %q", pages[0].Text)
	}
	if !strings.Contains(pages[0].Text, "Useful content here.") {
		t.Errorf("text missing body content: %q", pages[0].Text)
	}

	// One search credit + one fetched page credit.
	want := 0.002 * 2
	if got := ledger.Total(); math.Abs(got-want) > 1e-12 {
		t.Errorf("ledger total = %g, want %g", got, want)
	}
}

func TestSearchAndFetchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"web": {"results": []}}`)
	}))
	t.Cleanup(ts.Close)
	old := searchAPIBase
	searchAPIBase = ts.URL
	t.Cleanup(func() { searchAPIBase = old })

	ledger := costs.NewLedger()
	c := NewWebClient(testRetrievalConfig(), ledger)

	_, err := c.SearchAndFetch(context.Background(), "no such thing", "", 3)
	if !IsKind(err, KindNoResults) {
		t.Fatalf("err = %v, want no_results kind", err)
	}
	// The search call itself is still billed.
	if got := ledger.Total(); math.Abs(got-0.002) > 1e-12 {
		t.Errorf("ledger total = %g, want 0.002", got)
	}
}

func TestSearchAndFetchBlocked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(ts.Close)
	old := searchAPIBase
	searchAPIBase = ts.URL
	t.Cleanup(func() { searchAPIBase = old })

	c := NewWebClient(testRetrievalConfig(), costs.NewLedger())
	_, err := c.SearchAndFetch(context.Background(), "q", "", 3)
	if !IsKind(err, KindBlocked) {
		t.Fatalf("err = %v, want blocked kind", err)
	}
}

func TestSearchAndFetchAllPagesFail(t *testing.T) {
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(pageSrv.Close)

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"web": {"results": [{"url": %q, "title": "Walled"}]}}`, pageSrv.URL)
	}))
	t.Cleanup(searchSrv.Close)
	old := searchAPIBase
	searchAPIBase = searchSrv.URL
	t.Cleanup(func() { searchAPIBase = old })

	c := NewWebClient(testRetrievalConfig(), costs.NewLedger())
	_, err := c.SearchAndFetch(context.Background(), "q", "", 3)
	if !IsKind(err, KindFetchFailed) {
		t.Fatalf("err = %v, want fetch_failed kind", err)
	}
}

func TestSearchAppendsLocation(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"web": {"results": []}}`)
	}))
	t.Cleanup(ts.Close)
	old := searchAPIBase
	searchAPIBase = ts.URL
	t.Cleanup(func() { searchAPIBase = old })

	c := NewWebClient(testRetrievalConfig(), costs.NewLedger())
	c.SearchAndFetch(context.Background(), "running shoes", "Toronto", 3)

	if gotQuery != "running shoes Toronto" {
		t.Errorf("search query = %q, want location appended", gotQuery)
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><script>var x;</script><nav>menu</nav><body><h1>Title</h1><p>Body   text</p></body></html>`
	got := stripHTML(in)
	if strings.Contains(got, "var x") || strings.Contains(got, "menu") {
		t.Errorf("script/nav content survived: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Body text") {
		t.Errorf("visible text lost: %q", got)
	}
}
