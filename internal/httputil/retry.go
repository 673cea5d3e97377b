// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP and backoff helpers shared across the
// pipeline. The external-capability adapters never retry; stages own the
// retry policy and use Backoff to wait between attempts.
package httputil

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/fanout-engine/pkg/types"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = time.Second

// Backoff waits for the exponential backoff delay of the given attempt
// (0-based): base, 2*base, 4*base, and so on. It returns ctx.Err() if the
// context is cancelled during the wait. Attempt 0 returns immediately so
// callers can invoke it unconditionally at the top of a retry loop.
func Backoff(ctx context.Context, attempt int) error {
	if attempt <= 0 {
		return ctx.Err()
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * RetryBaseDelay
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// RetryAfter parses a Retry-After header carrying a delay in seconds.
// It returns zero when the header is absent or unparseable.
func RetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// NewClient returns an http.Client configured from cfg. A zero timeout
// falls back to 30 seconds so no external call can block indefinitely.
func NewClient(cfg types.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
