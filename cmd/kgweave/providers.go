package main

import (
	"fmt"
	"log/slog"

	"github.com/kgweave/kgweave/internal/config"
	"github.com/kgweave/kgweave/internal/resilience"
	"github.com/kgweave/kgweave/pkg/provider/embeddings"
	embmock "github.com/kgweave/kgweave/pkg/provider/embeddings/mock"
	"github.com/kgweave/kgweave/pkg/provider/embeddings/ollama"
	embopenai "github.com/kgweave/kgweave/pkg/provider/embeddings/openai"
	"github.com/kgweave/kgweave/pkg/provider/llm"
	"github.com/kgweave/kgweave/pkg/provider/llm/anyllm"
	llmmock "github.com/kgweave/kgweave/pkg/provider/llm/mock"
	llmopenai "github.com/kgweave/kgweave/pkg/provider/llm/openai"
)

// builtinProviders mirrors the donor's startup-summary table: every name the
// registry below knows how to construct, grouped by collaborator kind.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anyllm", "mock"},
	"embeddings": {"openai", "ollama", "mock"},
}

// registerBuiltinProviders wires the factories this binary ships with into
// reg. Additional backends can be registered the same way without touching
// the engine or dispatcher.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		return llmopenai.New(e.APIKey, e.Model)
	})
	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend, _ := e.Options["backend"].(string)
		if backend == "" {
			backend = "openai"
		}
		return anyllm.New(backend, e.Model)
	})
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		resp, _ := e.Options["response"].(string)
		if resp == "" {
			resp = "mock response"
		}
		return &llmmock.Provider{Response: resp}, nil
	})

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return embopenai.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return ollama.New(e.BaseURL, e.Model)
	})
	reg.RegisterEmbeddings("mock", func(e config.ProviderEntry) (embeddings.Provider, error) {
		dims := 8
		switch d := e.Options["dimensions"].(type) {
		case float64:
			dims = int(d)
		case int:
			dims = d
		}
		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = 1
		}
		return &embmock.Provider{EmbedResult: vec, DimensionsValue: dims, ModelIDValue: e.Model}, nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the three provider slots the engine needs,
// skipping any whose cfg entry leaves Name empty. An entry naming a
// provider the registry doesn't know errors out rather than silently
// degrading — unlike the donor's best-effort skip, every name here is a
// builtin the operator chose explicitly in their config file.
func buildProviders(cfg *config.Config, reg *config.Registry) (llmProvider, hydeProvider llm.Provider, embedProvider embeddings.Provider, err error) {
	if name := cfg.Providers.LLM.Name; name != "" {
		llmProvider, err = buildLLMWithFallbacks(cfg.Providers.LLM, reg, "llm")
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.HydeLLM.Name; name != "" {
		hydeProvider, err = buildLLMWithFallbacks(cfg.Providers.HydeLLM, reg, "hyde_llm")
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("provider created", "kind", "hyde_llm", "name", name)
	} else {
		hydeProvider = llmProvider
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		embedProvider, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return llmProvider, hydeProvider, embedProvider, nil
}

// buildLLMWithFallbacks constructs entry's primary provider and, when
// entry.Fallbacks is non-empty, wraps it in a [resilience.LLMFallback] so a
// failing or circuit-open primary automatically falls through to the next
// configured backend. label distinguishes the primary's slog/breaker name
// across the llm and hyde_llm provider slots.
func buildLLMWithFallbacks(entry config.ProviderEntry, reg *config.Registry, label string) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, label+":"+entry.Name, resilience.FallbackConfig{})
	for i, fb := range entry.Fallbacks {
		if fb.Name == "" {
			return nil, fmt.Errorf("%s fallback[%d]: name is required", label, i)
		}
		provider, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("%s fallback[%d] (%s): %w", label, i, fb.Name, err)
		}
		group.AddFallback(fmt.Sprintf("%s:%s#%d", label, fb.Name, i), provider)
		slog.Info("provider fallback registered", "kind", label, "name", fb.Name, "position", i)
	}
	return group, nil
}
