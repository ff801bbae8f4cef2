// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the decomposer and HyDE engine
// send correct prompts and to feed controlled responses without a live LLM
// backend.
//
// Example:
//
//	p := &mock.Provider{Response: "Hello!"}
//	text, err := p.Generate(ctx, "hi", "", llm.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/kgweave/kgweave/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Prompt       string
	SystemPrompt string
	Opts         llm.Options
}

// Provider is a mock implementation of llm.Provider. Zero values cause
// Generate to return an empty string and nil error. Set Err to inject a
// failure, or Responses to return a different string on each successive
// call (cycling back to Response once exhausted).
type Provider struct {
	mu sync.Mutex

	// Response is returned by Generate when Responses is empty.
	Response string

	// Responses, if non-empty, is consumed one entry per call to Generate,
	// in order; once exhausted, Response is returned for all further calls.
	Responses []string

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Calls records every invocation of Generate in order.
	Calls []GenerateCall
}

var _ llm.Provider = (*Provider)(nil)

// Generate records the call and returns the next configured response.
func (p *Provider) Generate(_ context.Context, prompt, systemPrompt string, opts llm.Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, GenerateCall{Prompt: prompt, SystemPrompt: systemPrompt, Opts: opts})

	if p.Err != nil {
		return "", p.Err
	}

	idx := len(p.Calls) - 1
	if idx < len(p.Responses) {
		return p.Responses[idx], nil
	}
	return p.Response, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
