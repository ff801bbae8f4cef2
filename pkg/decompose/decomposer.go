// Package decompose implements the chunk -> unit -> entity -> relationship
// state machine (C5): the central pipeline that turns raw text chunks into
// typed RDF nodes, backed by an LLM with a deterministic fallback at every
// extraction boundary so the pipeline never aborts mid-corpus.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/provider/llm"
	"github.com/kgweave/kgweave/pkg/rdf"
)

// maxEntityConcurrency bounds the number of in-flight entity/relationship
// sub-calls issued per unit, mirroring the donor's bounded-parallelism
// pattern for its own concurrent provider fan-out.
const maxEntityConcurrency = 8

// Chunk is one unit of input text with its source document identifier.
type Chunk struct {
	Content string
	Source  string
}

// Options tunes a single Decompose call.
type Options struct {
	ExtractRelationships bool
	GenerateSummaries    bool
	MinEntityConfidence  float64
	MaxEntitiesPerUnit   int

	// EntityDedupThreshold is the Jaro-Winkler similarity above which a new
	// entity mention is merged into an already-known entity instead of
	// minting a new one. Zero disables fuzzy merging; the exact-match
	// preferred-label reuse in entityRegistry.resolve always runs first and
	// is unaffected by this threshold.
	EntityDedupThreshold float64
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		ExtractRelationships: false,
		GenerateSummaries:    false,
		MinEntityConfidence:  0,
		MaxEntitiesPerUnit:   10,
		EntityDedupThreshold: 0,
	}
}

// Statistics summarises one Decompose call.
type Statistics struct {
	TotalChunks          int
	UnitsCreated         int
	EntitiesCreated      int
	EntitiesReused       int
	RelationshipsCreated int
	UnitFallbacksUsed    int
	EntityFallbacksUsed  int
	TotalTokens          int
	OversizedChunks      int
}

// Result is the output of a Decompose call.
type Result struct {
	Units         []*rdf.Unit
	Entities      []*rdf.Entity
	Relationships []*rdf.Relationship
	Dataset       *graph.Dataset
	Statistics    Statistics
}

// Decomposer drives the decomposition pipeline against one LLM provider.
type Decomposer struct {
	reg *rdf.Registry
	llm llm.Provider
	now func() time.Time
}

// New constructs a Decomposer scoped to reg (for URI minting) and provider
// (for LLM calls). now defaults to time.Now if nil, overridable in tests for
// deterministic timestamps.
func New(reg *rdf.Registry, provider llm.Provider, now func() time.Time) *Decomposer {
	if now == nil {
		now = time.Now
	}
	return &Decomposer{reg: reg, llm: provider, now: now}
}

// entityRegistry tracks known entities by exact-match preferred label across
// the whole corpus, guarded by a mutex since entity extraction sub-calls run
// concurrently within and across units. threshold, when non-zero, adds a
// fuzzy Jaro-Winkler pass after the exact-match check fails, merging
// near-duplicate mentions ("Elon Musk" / "Elonn Musk") that the exact-match
// rule alone would leave as separate entities.
type entityRegistry struct {
	mu        sync.Mutex
	byLabel   map[string]*rdf.Entity
	threshold float64
	created   int
	reused    int
}

func newEntityRegistry(threshold float64) *entityRegistry {
	return &entityRegistry{byLabel: make(map[string]*rdf.Entity), threshold: threshold}
}

// resolve returns the entity for name, creating one if this is the first
// mention, and reports whether it was newly created. Exact-match on
// preferred label always takes priority; fuzzy matching only runs when that
// misses and a threshold is configured.
func (er *entityRegistry) resolve(reg *rdf.Registry, now time.Time, name string, confidence float64, source string) (*rdf.Entity, bool) {
	er.mu.Lock()
	defer er.mu.Unlock()

	if e, ok := er.byLabel[name]; ok {
		e.RecordMention(now, source)
		er.reused++
		return e, false
	}

	if er.threshold > 0 {
		if e, label, ok := er.bestFuzzyMatchLocked(name); ok {
			e.RecordMention(now, source)
			e.AddAltLabel(now, name)
			er.byLabel[name] = e
			er.reused++
			_ = label
			return e, false
		}
	}

	e := rdf.NewEntity(reg, now, "en", name, confidence)
	e.Sources[source] = struct{}{}
	e.AddTriple(now, "kg:hasSource", source)
	er.byLabel[name] = e
	er.created++
	return e, true
}

// bestFuzzyMatchLocked scans every known label for the highest Jaro-Winkler
// score against name, returning the owning entity when that score clears
// er.threshold. Must be called with er.mu held.
func (er *entityRegistry) bestFuzzyMatchLocked(name string) (*rdf.Entity, string, bool) {
	var best *rdf.Entity
	var bestLabel string
	bestScore := er.threshold
	for label, e := range er.byLabel {
		if score := matchr.JaroWinkler(name, label, false); score >= bestScore {
			best, bestLabel, bestScore = e, label, score
		}
	}
	return best, bestLabel, best != nil
}

func (er *entityRegistry) all() []*rdf.Entity {
	er.mu.Lock()
	defer er.mu.Unlock()
	seen := make(map[*rdf.Entity]struct{}, len(er.byLabel))
	out := make([]*rdf.Entity, 0, len(er.byLabel))
	for _, e := range er.byLabel {
		// A fuzzy-merged alias is keyed to the same entity as its canonical label.
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Decompose runs the full per-chunk pipeline (unit extraction, optional
// summaries, entity extraction) followed by the corpus-wide phases (optional
// relationship extraction, inter-unit "follows" edges), returning every
// produced node plus a dataset holding their exported triples.
func (d *Decomposer) Decompose(ctx context.Context, chunks []Chunk, opts Options) (*Result, error) {
	if opts.MaxEntitiesPerUnit <= 0 {
		opts.MaxEntitiesPerUnit = 10
	}

	stats := Statistics{TotalChunks: len(chunks)}
	entities := newEntityRegistry(opts.EntityDedupThreshold)
	var units []*rdf.Unit
	position := 0

	for _, chunk := range chunks {
		tokens := countTokens(chunk.Content)
		stats.TotalTokens += tokens
		if tokens > maxChunkTokens {
			stats.OversizedChunks++
		}

		contents, usedFallback := d.extractUnits(ctx, chunk.Content)
		if usedFallback {
			stats.UnitFallbacksUsed++
		}

		chunkUnits := make([]*rdf.Unit, 0, len(contents))
		for _, content := range contents {
			u, err := rdf.NewUnit(d.reg, d.now(), content, chunk.Source, position)
			if err != nil {
				// Below MinUnitContentLength: extraction already filters this
				// for the fallback path, but a malformed LLM unit can still
				// slip through. Skip rather than abort the corpus.
				continue
			}
			position++
			chunkUnits = append(chunkUnits, u)
		}

		if opts.GenerateSummaries {
			for _, u := range chunkUnits {
				d.applySummary(ctx, u)
			}
		}

		if err := d.extractEntitiesForUnits(ctx, chunkUnits, opts, entities, &stats); err != nil {
			return nil, err
		}

		units = append(units, chunkUnits...)
	}

	var relationships []*rdf.Relationship
	if opts.ExtractRelationships {
		extracted, err := d.extractRelationships(ctx, units, entities, &stats)
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, extracted...)
	}

	relationships = append(relationships, d.linkFollows(units, &stats)...)

	stats.EntitiesCreated = entities.created
	stats.EntitiesReused = entities.reused
	stats.UnitsCreated = len(units)

	ds := graph.NewDataset()
	for _, u := range units {
		u.Export(ds.Exporter())
	}
	for _, e := range entities.all() {
		e.Export(ds.Exporter())
	}
	for _, r := range relationships {
		r.Export(ds.Exporter())
	}

	return &Result{
		Units:         units,
		Entities:      entities.all(),
		Relationships: relationships,
		Dataset:       ds,
		Statistics:    stats,
	}, nil
}

// linkFollows appends a "follows" relationship weight 0.3 between each
// consecutive unit pair in emission order.
func (d *Decomposer) linkFollows(units []*rdf.Unit, stats *Statistics) []*rdf.Relationship {
	var rels []*rdf.Relationship
	for i := 1; i < len(units); i++ {
		r, err := rdf.NewRelationship(d.reg, d.now(), units[i-1].URI(), units[i].URI(), "follows", 0.3)
		if err != nil {
			continue
		}
		rels = append(rels, r)
		stats.RelationshipsCreated++
	}
	return rels
}

// extractUnits prompts the LLM for a JSON array of stand-alone semantic unit
// strings and reports whether the sentence-split fallback was used.
func (d *Decomposer) extractUnits(ctx context.Context, content string) ([]string, bool) {
	prompt := fmt.Sprintf(
		"Split the following text into stand-alone semantic units (complete statements). "+
			"Respond with a JSON array of strings, one per unit.\n\nText:\n%s", content)

	out, err := d.llm.Generate(ctx, prompt, unitExtractionSystemPrompt, llm.Options{})
	if err != nil {
		return splitSentences(content), true
	}

	raw, ok := Extract(out)
	if !ok {
		return splitSentences(content), true
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return splitSentences(content), true
	}

	var filtered []string
	for _, s := range strs {
		s = strings.TrimSpace(s)
		if len(s) >= minSentenceLength {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return splitSentences(content), true
	}
	return filtered, false
}

const unitExtractionSystemPrompt = "You extract coherent, stand-alone semantic units from text for a knowledge graph. Respond only with the requested JSON."

// applySummary generates a 1-2 sentence summary for units longer than 100
// characters, falling back to a truncated prefix on any LLM failure.
func (d *Decomposer) applySummary(ctx context.Context, u *rdf.Unit) {
	content := u.Content()
	if len(content) <= 100 {
		return
	}

	prompt := fmt.Sprintf("Summarise the following text in 1-2 sentences.\n\nText:\n%s", content)
	summary, err := d.llm.Generate(ctx, prompt, "You write terse, faithful summaries.", llm.Options{})
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		summary = truncateSummary(content)
	}
	u.Summary = summary
}

// extractedEntity is the JSON shape requested from the LLM for entity
// extraction.
type extractedEntity struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Relevance    float64 `json:"relevance"`
	IsEntryPoint bool    `json:"isEntryPoint"`
	Confidence   float64 `json:"confidence"`
}

// extractEntitiesForUnits runs entity extraction concurrently per unit,
// bounded by maxEntityConcurrency.
func (d *Decomposer) extractEntitiesForUnits(ctx context.Context, units []*rdf.Unit, opts Options, entities *entityRegistry, stats *Statistics) error {
	if len(units) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(maxEntityConcurrency)
	var mu sync.Mutex

	for _, u := range units {
		u := u
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			fallbackUsed := d.extractEntitiesForUnit(gctx, u, opts, entities)
			if fallbackUsed {
				mu.Lock()
				stats.EntityFallbacksUsed++
				mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

// extractEntitiesForUnit extracts entities for a single unit and attaches
// mentions, reporting whether the fallback path was used.
func (d *Decomposer) extractEntitiesForUnit(ctx context.Context, u *rdf.Unit, opts Options, entities *entityRegistry) bool {
	extracted, usedFallback := d.extractEntitiesRaw(ctx, u.Content())

	filtered := make([]extractedEntity, 0, len(extracted))
	for _, e := range extracted {
		if len(e.Name) <= 1 {
			continue
		}
		if e.Confidence < opts.MinEntityConfidence {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) > opts.MaxEntitiesPerUnit {
		filtered = filtered[:opts.MaxEntitiesPerUnit]
	}

	now := d.now()
	for _, ee := range filtered {
		entity, _ := entities.resolve(d.reg, now, ee.Name, ee.Confidence, u.SourceDoc)
		u.AddMention(now, entity.URI(), ee.Relevance)
	}
	return usedFallback
}

// extractEntitiesRaw prompts the LLM for a JSON array of entity descriptors,
// falling back to the capitalised-n-gram heuristic on any failure.
func (d *Decomposer) extractEntitiesRaw(ctx context.Context, content string) ([]extractedEntity, bool) {
	prompt := fmt.Sprintf(
		"Extract named entities from the following text. Respond with a JSON array of "+
			"objects: {\"name\":string,\"type\":string,\"relevance\":number 0-1,"+
			"\"isEntryPoint\":bool,\"confidence\":number 0-1}.\n\nText:\n%s", content)

	out, err := d.llm.Generate(ctx, prompt, entityExtractionSystemPrompt, llm.Options{})
	if err != nil {
		return fallbackEntities(content), true
	}

	raw, ok := Extract(out)
	if !ok {
		return fallbackEntities(content), true
	}

	var entities []extractedEntity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return fallbackEntities(content), true
	}
	if len(entities) == 0 {
		return fallbackEntities(content), true
	}
	return entities, false
}

func fallbackEntities(content string) []extractedEntity {
	fe := capitalizedNGrams(content)
	out := make([]extractedEntity, 0, len(fe))
	for _, e := range fe {
		out = append(out, extractedEntity{
			Name:       e.Name,
			Relevance:  e.Confidence,
			Confidence: e.Confidence,
		})
	}
	return out
}

const entityExtractionSystemPrompt = "You extract named entities (people, places, organisations, concepts) from text for a knowledge graph. Respond only with the requested JSON."

// extractedRelationship is the JSON shape requested from the LLM for
// relationship extraction.
type extractedRelationship struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// extractRelationships runs phase 2: for every unit whose content contains
// at least two known entity labels (case-insensitive substring match), it
// prompts the LLM for relationship tuples between those entities.
func (d *Decomposer) extractRelationships(ctx context.Context, units []*rdf.Unit, entities *entityRegistry, stats *Statistics) ([]*rdf.Relationship, error) {
	labelToURI := make(map[string]string)
	for _, e := range entities.all() {
		labelToURI[strings.ToLower(e.PreferredLabel)] = e.URI()
	}
	if len(labelToURI) == 0 {
		return nil, nil
	}

	var rels []*rdf.Relationship
	for _, u := range units {
		lower := strings.ToLower(u.Content())
		var mentioned []string
		for label := range labelToURI {
			if strings.Contains(lower, label) {
				mentioned = append(mentioned, label)
			}
		}
		if len(mentioned) < 2 {
			continue
		}

		tuples, err := d.extractRelationshipTuples(ctx, u.Content(), mentioned)
		if err != nil {
			// Relationship extraction has no deterministic fallback by
			// design (spec §4.3 step 4 is best-effort); skip this unit.
			continue
		}

		for _, t := range tuples {
			sourceURI, ok1 := labelToURI[strings.ToLower(t.Source)]
			targetURI, ok2 := labelToURI[strings.ToLower(t.Target)]
			if !ok1 || !ok2 || sourceURI == targetURI {
				continue
			}
			rel, err := rdf.NewRelationship(d.reg, d.now(), sourceURI, targetURI, t.Type, t.Weight)
			if err != nil {
				continue
			}
			rel.AddEvidence(d.now(), u.URI())
			stats.RelationshipsCreated++
			u.AddTriple(d.now(), "kg:relatesTo", rel.URI())
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

// extractRelationshipTuples prompts the LLM with the candidate entity
// labels and the unit text, returning accepted {source,target,type,weight}
// tuples.
func (d *Decomposer) extractRelationshipTuples(ctx context.Context, content string, labels []string) ([]extractedRelationship, error) {
	prompt := fmt.Sprintf(
		"Given the entities %v and the following text, identify relationships between them. "+
			"Respond with a JSON array of objects: {\"source\":string,\"target\":string,"+
			"\"type\":string,\"weight\":number 0-1}.\n\nText:\n%s", labels, content)

	out, err := d.llm.Generate(ctx, prompt, relationshipExtractionSystemPrompt, llm.Options{})
	if err != nil {
		return nil, kgerr.New(kgerr.LLM, "decompose.extractRelationships", err)
	}

	raw, ok := Extract(out)
	if !ok {
		return nil, kgerr.New(kgerr.Internal, "decompose.extractRelationships", fmt.Errorf("no JSON found in LLM output"))
	}

	var tuples []extractedRelationship
	if err := json.Unmarshal(raw, &tuples); err != nil {
		return nil, kgerr.New(kgerr.Internal, "decompose.extractRelationships", err)
	}
	return tuples, nil
}

const relationshipExtractionSystemPrompt = "You identify typed, weighted relationships between named entities in text for a knowledge graph. Respond only with the requested JSON."
