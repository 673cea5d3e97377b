// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval provides a uniform interface over the web search and
// scrape capability. A call returns ranked page content for a query or a
// typed failure. Costs are recorded in the ledger before returning; this
// layer never retries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a retrieval failure.
type ErrorKind string

const (
	// KindNoResults means the search returned zero results.
	KindNoResults ErrorKind = "no_results"

	// KindFetchFailed covers network errors, timeouts, and pages that
	// could not be scraped.
	KindFetchFailed ErrorKind = "fetch_failed"

	// KindBlocked covers rate-limit and access-denied responses.
	KindBlocked ErrorKind = "blocked"
)

// Error is the typed failure returned by retrieval backends.
type Error struct {
	Kind  ErrorKind
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieval %q (%s): %v", e.Query, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a retrieval Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}

// PageContent is one ranked result with its extracted text.
type PageContent struct {
	Rank  int
	URL   string
	Title string
	Text  string
}

// Client searches the web and fetches page content for the top results.
type Client interface {
	// SearchAndFetch returns up to limit pages ranked by the search engine.
	// The optional location biases the search; empty means no bias.
	SearchAndFetch(ctx context.Context, query, location string, limit int) ([]PageContent, error)
}
