// Package llm defines the Provider interface for Large Language Model
// backends used by the decomposer (pkg/decompose) and the HyDE hypothesis
// generator (pkg/hyde).
//
// A provider wraps a remote or local model API and exposes a single
// generate call so callers do not couple to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Options tunes a single Generate call. A zero-value Options requests the
// provider's own defaults for every field.
type Options struct {
	// Model overrides the provider's default model for this call. Empty
	// means use the provider's configured default.
	Model string

	// MaxTokens caps the number of completion tokens generated. Zero means
	// use the provider default.
	MaxTokens int

	// Temperature controls output randomness. Zero means use the provider
	// default rather than literally requesting temperature 0.
	Temperature float64
}

// Provider is the abstraction over any LLM backend used by the engine.
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Generate sends prompt (plus an optional systemPrompt) to the model and
	// returns the full text of its response.
	Generate(ctx context.Context, prompt, systemPrompt string, opts Options) (string, error)
}
