// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package genai provides a uniform interface over the text-generation
// capability. A request carries a prompt and a declared output schema tag;
// a response carries parsed-ready JSON. Every call records its cost in the
// ledger before returning, and failures are classified into a fixed
// taxonomy so the stages can decide the retry policy. This layer itself
// never retries.
package genai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	// KindTransient covers timeouts, connection failures, and 5xx responses.
	KindTransient ErrorKind = "transient"

	// KindMalformed covers responses that do not match the declared schema.
	KindMalformed ErrorKind = "malformed"

	// KindQuota covers rate-limit and quota-exhausted responses.
	KindQuota ErrorKind = "quota"
)

// Error is the typed failure returned by generation backends.
type Error struct {
	Kind   ErrorKind
	CallID string
	Err    error

	// RetryAfter is the server-requested wait before the next attempt,
	// zero when the backend gave none. Only quota errors carry it.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation %s (%s): %v", e.CallID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a generation Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == kind
}

// SchemaTag names the expected response shape. Prompts are a stage-level
// concern; the tag is the contract between a stage and the backend.
type SchemaTag string

const (
	SchemaExpansion SchemaTag = "expansion"
	SchemaRouting   SchemaTag = "routing"
	SchemaProfile   SchemaTag = "profile"
)

// Request is one generation call.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string

	// Schema declares the expected output shape.
	Schema SchemaTag

	// CallID identifies the call in the cost ledger and in errors
	// (e.g. "route-sq-004").
	CallID string
}

// Response is the structured result of a successful generation call.
type Response struct {
	// Raw is the response payload, guaranteed to be valid JSON.
	Raw []byte

	// InputTokens and OutputTokens report usage when the backend provides it.
	InputTokens  int
	OutputTokens int
}

// Client sends prompts to the generation capability.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
