// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"context"
	"errors"
	"time"

	"github.com/pdiddy/fanout-engine/internal/httputil"
	"github.com/pdiddy/fanout-engine/pkg/types"
)

// strictReminder is appended to the prompt when a schema violation earns
// its single retry.
const strictReminder = `REMINDER: your previous response did not match the required schema. ` +
	`Respond with a single valid JSON object exactly matching the schema described above. ` +
	`Include every required key. Do not include any text outside the JSON object.`

// GenerateParsed calls the client and decodes the response through parse,
// applying the pipeline retry policy: transient and quota failures are
// retried up to maxRetries with exponential backoff, and a schema
// violation — whether the backend returned non-JSON or parse rejected the
// payload — is retried exactly once with a stricter reminder appended to
// the prompt. It returns the number of calls made so callers can record
// it on an item failure.
func GenerateParsed(ctx context.Context, c Client, req Request, maxRetries int, parse func(raw []byte) error) (int, error) {
	transientAttempts := 0
	malformedRetried := false
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return attempts, &Error{Kind: KindTransient, CallID: req.CallID, Err: err}
		}
		attempts++

		resp, err := c.Generate(ctx, req)
		if err == nil {
			if perr := parse(resp.Raw); perr != nil {
				err = &Error{Kind: KindMalformed, CallID: req.CallID, Err: perr}
			}
		}
		if err == nil {
			return attempts, nil
		}

		switch {
		case IsKind(err, KindMalformed):
			if malformedRetried {
				return attempts, err
			}
			malformedRetried = true
			req.Prompt = req.Prompt + "\n\n" + strictReminder

		case IsKind(err, KindTransient) || IsKind(err, KindQuota):
			if transientAttempts >= maxRetries {
				return attempts, err
			}
			transientAttempts++
			if berr := wait(ctx, err, transientAttempts); berr != nil {
				return attempts, &Error{Kind: KindTransient, CallID: req.CallID, Err: berr}
			}

		default:
			return attempts, err
		}
	}
}

// wait sleeps before the next attempt: the server-requested Retry-After
// when the error carries one, exponential backoff otherwise.
func wait(ctx context.Context, cause error, attempt int) error {
	var ge *Error
	if errors.As(cause, &ge) && ge.RetryAfter > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ge.RetryAfter):
			return nil
		}
	}
	return httputil.Backoff(ctx, attempt)
}

// FailureReasonFor maps a generation error to its item-failure tag.
func FailureReasonFor(err error) types.FailureReason {
	switch {
	case IsKind(err, KindMalformed):
		return types.ReasonMalformed
	case IsKind(err, KindQuota):
		return types.ReasonQuota
	default:
		return types.ReasonTransient
	}
}
