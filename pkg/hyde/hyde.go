// Package hyde implements the hypothetical-document generator (C6): for a
// query string it produces N LLM-generated candidate-answer units, each
// tagged maybe=true with a deterministic confidence score, linked back to
// the query by a "hypothetical-answer" relationship.
package hyde

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kgweave/kgweave/pkg/decompose"
	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/provider/llm"
	"github.com/kgweave/kgweave/pkg/rdf"
)

// promptTemplates rotate across successive hypotheses for a single query to
// encourage diversity of phrasing and angle.
var promptTemplates = []string{
	"Write a detailed, plausible answer to the following question, as if it were an excerpt from an authoritative source.\n\nQuestion: %s",
	"Imagine a passage from a reference document that directly answers this question. Write that passage.\n\nQuestion: %s",
	"Draft a hypothetical explanation that would satisfy someone asking the following question.\n\nQuestion: %s",
}

// Options tunes a single Generate call.
type Options struct {
	HypothesesPerQuery int
	BaseTemperature    float64
	ReExtractEntities  bool
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{HypothesesPerQuery: 3, BaseTemperature: 0.7}
}

// Result is the output of a single Generate call for one query.
type Result struct {
	Hypotheses    []*rdf.Unit
	Entities      []*rdf.Entity
	Relationships []*rdf.Relationship
	Dataset       *graph.Dataset
}

// Engine drives hypothesis generation against one LLM provider.
type Engine struct {
	reg *rdf.Registry
	llm llm.Provider
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs an Engine. seed fixes the jitter sequence for reproducible
// results in tests; now defaults to time.Now if nil.
func New(reg *rdf.Registry, provider llm.Provider, seed int64, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{reg: reg, llm: provider, now: now, rng: rand.New(rand.NewSource(seed))}
}

// jitter returns a deterministic-per-engine-instance ±0.05 perturbation.
func (e *Engine) jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return (e.rng.Float64()*2 - 1) * 0.05
}

// Generate produces opts.HypothesesPerQuery hypothesis units for query,
// each linked to a minted query URI by a "hypothetical-answer" relationship.
func (e *Engine) Generate(ctx context.Context, query string, opts Options) (*Result, error) {
	if opts.HypothesesPerQuery <= 0 {
		opts.HypothesesPerQuery = 3
	}

	queryURI := e.reg.Mint("Query")
	result := &Result{Dataset: graph.NewDataset()}

	for i := 0; i < opts.HypothesesPerQuery; i++ {
		template := promptTemplates[i%len(promptTemplates)]
		prompt := fmt.Sprintf(template, query)
		temperature := opts.BaseTemperature + float64(i)*0.1

		text, err := e.llm.Generate(ctx, prompt, hypothesisSystemPrompt, llm.Options{Temperature: temperature})
		if err != nil {
			// A single hypothesis failing never aborts its siblings.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		now := e.now()
		unit, err := rdf.NewUnit(e.reg, now, text, queryURI, i)
		if err != nil {
			continue
		}
		unit.SetSubType(now, "hypothesis")

		confidence := clampConfidence(Score(text, query) + e.jitter())
		unit.SetHypothetical(now, confidence)

		rel, err := rdf.NewRelationship(e.reg, now, queryURI, unit.URI(), "hypothetical-answer", confidence)
		if err == nil {
			rel.SetHypothetical(now, confidence)
			result.Relationships = append(result.Relationships, rel)
		}

		result.Hypotheses = append(result.Hypotheses, unit)

		if opts.ReExtractEntities {
			entities, mentionRels := e.reExtractEntities(ctx, unit, confidence)
			result.Entities = append(result.Entities, entities...)
			result.Relationships = append(result.Relationships, mentionRels...)
		}
	}

	for _, u := range result.Hypotheses {
		u.Export(result.Dataset.Exporter())
	}
	for _, en := range result.Entities {
		en.Export(result.Dataset.Exporter())
	}
	for _, r := range result.Relationships {
		r.Export(result.Dataset.Exporter())
	}

	return result, nil
}

const hypothesisSystemPrompt = "You write plausible, detailed hypothetical answers for a retrieval-augmented knowledge graph. Respond with prose only, no preamble."

// hypothesisEntity is the JSON shape requested from the LLM for the terse
// re-extraction pass over a hypothesis's own content.
type hypothesisEntity struct {
	Name string `json:"name"`
}

// reExtractEntities runs a second, terse LLM call to pull entity names out
// of the hypothesis content, producing Entity nodes and per-entity
// "mentions" relationships, each scaled to 0.8x the parent hypothesis's
// confidence and tagged maybe=true.
func (e *Engine) reExtractEntities(ctx context.Context, unit *rdf.Unit, parentConfidence float64) ([]*rdf.Entity, []*rdf.Relationship) {
	prompt := fmt.Sprintf("List the named entities mentioned in this text as a JSON array of {\"name\":string}.\n\nText:\n%s", unit.Content())
	out, err := e.llm.Generate(ctx, prompt, "You extract named entities. Respond only with the requested JSON.", llm.Options{})
	if err != nil {
		return nil, nil
	}

	raw, ok := decompose.Extract(out)
	if !ok {
		return nil, nil
	}
	var raws []hypothesisEntity
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, nil
	}

	confidence := clampConfidence(parentConfidence * 0.8)
	now := e.now()

	var entities []*rdf.Entity
	var rels []*rdf.Relationship
	for _, re := range raws {
		name := strings.TrimSpace(re.Name)
		if name == "" {
			continue
		}
		entity := rdf.NewEntity(e.reg, now, "en", name, confidence)
		entity.SetHypothetical(now, confidence)
		entities = append(entities, entity)

		rel, err := rdf.NewRelationship(e.reg, now, unit.URI(), entity.URI(), "mentions", confidence)
		if err != nil {
			continue
		}
		rel.SetHypothetical(now, confidence)
		rels = append(rels, rel)
	}
	return entities, rels
}
