// Package kgerr defines the error kinds shared across the knowledge-graph
// engine's packages. An error wrapped in an *Error resolves to one of these
// kinds via errors.As, so callers can branch on failure category without
// depending on package-specific sentinel values. Not every package wraps its
// errors this way: pkg/hyde and pkg/store/postgres return plain
// fmt.Errorf-wrapped errors, and internal/engine reports an error that
// carries no kind as Internal.
package kgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch-level handling and metrics.
type Kind string

const (
	// Validation indicates the input failed a precondition before any work
	// was attempted. No side effects occur.
	Validation Kind = "ValidationError"

	// LLM indicates a failed call to the LLM handler collaborator.
	LLM Kind = "LLMError"

	// Embedding indicates a failed or malformed call to the embedding
	// handler collaborator.
	Embedding Kind = "EmbeddingError"

	// Index indicates a vector index failure: dimension mismatch, capacity
	// exceeded, or a corrupt on-disk structure.
	Index Kind = "IndexError"

	// Store indicates a graph-query endpoint failure.
	Store Kind = "StoreError"

	// Timeout indicates an operation exceeded its caller-provided deadline.
	Timeout Kind = "Timeout"

	// Internal indicates an assertion failure or otherwise unexpected
	// condition; fatal for the enclosing operation only.
	Internal Kind = "Internal"
)

// Error wraps an underlying error with a Kind and the operation name that
// produced it, following the "<component>: <op>: %w" wrapping convention
// used throughout this module.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind, wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err, walking the Unwrap chain. It returns ("", false)
// if err does not wrap a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
