package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kgweave/kgweave/pkg/decompose"
	"github.com/kgweave/kgweave/pkg/enrich"
	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/hyde"
	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/search"
)

// handlerFunc is the shape every registered operation handler implements.
// The returned value becomes Response.Result on success; the error, if any,
// becomes Response.Error via kgerr.Of.
type handlerFunc func(ctx context.Context, e *Engine, params json.RawMessage) (any, error)

// operationHandlers is the dispatcher's registry, matching spec.md §4.8's
// enumerated operation set.
var operationHandlers = map[string]handlerFunc{
	"decompose":     handleDecompose,
	"enrich":        handleEnrich,
	"hyde-generate": handleHydeGenerate,
	"hyde-query":    handleHydeQuery,
	"search":        handleSearch,
	"pipeline":      handlePipeline,
	"stats":         handleStats,
	"entities":      handleEntities,
	"communities":   handleCommunities,
	"export":        handleExport,
}

func unmarshalParams(raw json.RawMessage, op string, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return kgerr.New(kgerr.Validation, "engine."+op, fmt.Errorf("invalid params: %w", err))
	}
	return nil
}

// ─── decompose ───────────────────────────────────────────────────────────

type chunkParam struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

type decomposeOptionsParam struct {
	ExtractRelationships *bool    `json:"extractRelationships,omitempty"`
	GenerateSummaries    *bool    `json:"generateSummaries,omitempty"`
	MinEntityConfidence  *float64 `json:"minEntityConfidence,omitempty"`
	MaxEntitiesPerUnit   *int     `json:"maxEntitiesPerUnit,omitempty"`
	EntityDedupThreshold *float64 `json:"entityDedupThreshold,omitempty"`
}

type decomposeParams struct {
	Text    string                 `json:"text,omitempty"`
	Chunks  []chunkParam           `json:"chunks,omitempty"`
	Options *decomposeOptionsParam `json:"options,omitempty"`
}

func applyDecomposeOptions(base decompose.Options, p *decomposeOptionsParam) decompose.Options {
	if p == nil {
		return base
	}
	if p.ExtractRelationships != nil {
		base.ExtractRelationships = *p.ExtractRelationships
	}
	if p.GenerateSummaries != nil {
		base.GenerateSummaries = *p.GenerateSummaries
	}
	if p.MinEntityConfidence != nil {
		base.MinEntityConfidence = *p.MinEntityConfidence
	}
	if p.MaxEntitiesPerUnit != nil {
		base.MaxEntitiesPerUnit = *p.MaxEntitiesPerUnit
	}
	if p.EntityDedupThreshold != nil {
		base.EntityDedupThreshold = *p.EntityDedupThreshold
	}
	return base
}

// resolveChunks turns a decompose/pipeline call's text-or-chunks params into
// a validated []decompose.Chunk, enforcing MaxTextLength per chunk and
// MaxBatchSize over the chunk count, per spec.md §4.8.
func (e *Engine) resolveChunks(text string, chunkParams []chunkParam) ([]decompose.Chunk, error) {
	if text == "" && len(chunkParams) == 0 {
		return nil, kgerr.New(kgerr.Validation, "engine.decompose", errors.New("one of text or chunks is required"))
	}

	var chunks []decompose.Chunk
	if text != "" {
		if len(text) > e.cfg.MaxTextLength {
			return nil, kgerr.New(kgerr.Validation, "engine.decompose",
				fmt.Errorf("text length %d exceeds maxTextLength %d", len(text), e.cfg.MaxTextLength))
		}
		chunks = append(chunks, decompose.Chunk{Content: text, Source: "input"})
	}
	if len(chunkParams) > 0 {
		if len(chunkParams) > e.cfg.MaxBatchSize {
			return nil, kgerr.New(kgerr.Validation, "engine.decompose",
				fmt.Errorf("chunks length %d exceeds maxBatchSize %d", len(chunkParams), e.cfg.MaxBatchSize))
		}
		for i, c := range chunkParams {
			if len(c.Content) > e.cfg.MaxTextLength {
				return nil, kgerr.New(kgerr.Validation, "engine.decompose",
					fmt.Errorf("chunks[%d] length %d exceeds maxTextLength %d", i, len(c.Content), e.cfg.MaxTextLength))
			}
			chunks = append(chunks, decompose.Chunk{Content: c.Content, Source: c.Source})
		}
	}
	return chunks, nil
}

type decomposeResult struct {
	UnitsCreated         int                  `json:"unitsCreated"`
	EntitiesCreated      int                  `json:"entitiesCreated"`
	RelationshipsCreated int                  `json:"relationshipsCreated"`
	Statistics           decompose.Statistics `json:"statistics"`
}

func handleDecompose(ctx context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p decomposeParams
	if err := unmarshalParams(raw, "decompose", &p); err != nil {
		return nil, err
	}
	if e.decomposer == nil {
		return nil, kgerr.New(kgerr.Validation, "engine.decompose", errors.New("no LLM provider configured"))
	}

	chunks, err := e.resolveChunks(p.Text, p.Chunks)
	if err != nil {
		return nil, err
	}
	defaults := decompose.DefaultOptions()
	defaults.EntityDedupThreshold = e.cfg.EntityDedupThreshold
	opts := applyDecomposeOptions(defaults, p.Options)

	start := time.Now()
	result, err := e.decomposer.Decompose(ctx, chunks, opts)
	if e.metrics != nil {
		e.metrics.DecomposeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	e.mergeDataset(result.Dataset)

	return decomposeResult{
		UnitsCreated:         len(result.Units),
		EntitiesCreated:      len(result.Entities),
		RelationshipsCreated: len(result.Relationships),
		Statistics:           result.Statistics,
	}, nil
}

// ─── enrich ──────────────────────────────────────────────────────────────

type enrichOptionsParam struct {
	RetrievableTypes    []string `json:"retrievableTypes,omitempty"`
	BatchSize           *int     `json:"batchSize,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
	LinkAcrossTypes     *bool    `json:"linkAcrossTypes,omitempty"`
	Dimension           *int     `json:"dimension,omitempty"`
}

type enrichParams struct {
	Options *enrichOptionsParam `json:"options,omitempty"`
}

type enrichResult struct {
	Statistics enrich.Statistics `json:"statistics"`
}

func handleEnrich(ctx context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p enrichParams
	if err := unmarshalParams(raw, "enrich", &p); err != nil {
		return nil, err
	}
	if e.enricher == nil {
		return nil, kgerr.New(kgerr.Validation, "engine.enrich", errors.New("no embeddings provider configured"))
	}

	dim := e.cfg.VectorDimension
	cfg := enrich.DefaultConfig(dim)
	if o := p.Options; o != nil {
		if len(o.RetrievableTypes) > 0 {
			cfg.RetrievableTypes = o.RetrievableTypes
		}
		if o.BatchSize != nil {
			cfg.BatchSize = *o.BatchSize
		}
		if o.SimilarityThreshold != nil {
			cfg.SimilarityThreshold = *o.SimilarityThreshold
		}
		if o.LinkAcrossTypes != nil {
			cfg.LinkAcrossTypes = *o.LinkAcrossTypes
		}
		if o.Dimension != nil {
			cfg.Dimension = *o.Dimension
		}
	}
	if cfg.Dimension <= 0 {
		return nil, kgerr.New(kgerr.Validation, "engine.enrich", errors.New("embedding dimension must be configured (engine.VectorDimension or options.dimension)"))
	}

	ds, _ := e.snapshot()

	start := time.Now()
	result, err := e.enricher.Enrich(ctx, ds, cfg)
	if e.metrics != nil {
		e.metrics.EnrichDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	if result.VectorIndex != nil {
		e.setIndex(result.VectorIndex)
		if e.metrics != nil {
			e.metrics.VectorIndexSize.Add(ctx, int64(result.Statistics.VectorsIndexed))
		}
	}

	return enrichResult{Statistics: result.Statistics}, nil
}

// ─── hyde-generate ───────────────────────────────────────────────────────

type hydeOptionsParam struct {
	HypothesesPerQuery *int     `json:"hypothesesPerQuery,omitempty"`
	BaseTemperature    *float64 `json:"baseTemperature,omitempty"`
	ReExtractEntities  *bool    `json:"reExtractEntities,omitempty"`
}

type hydeGenerateParams struct {
	Queries []string          `json:"queries"`
	Options *hydeOptionsParam `json:"options,omitempty"`
}

type hydeGenerateResult struct {
	HypothesesCreated int `json:"hypothesesCreated"`
	EntitiesCreated   int `json:"entitiesCreated"`
}

func handleHydeGenerate(ctx context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p hydeGenerateParams
	if err := unmarshalParams(raw, "hyde-generate", &p); err != nil {
		return nil, err
	}
	if e.hydeEngine == nil {
		return nil, kgerr.New(kgerr.Validation, "engine.hyde-generate", errors.New("no HyDE LLM provider configured"))
	}
	if len(p.Queries) == 0 {
		return nil, kgerr.New(kgerr.Validation, "engine.hyde-generate", errors.New("queries must be non-empty"))
	}
	if len(p.Queries) > e.cfg.MaxBatchSize {
		return nil, kgerr.New(kgerr.Validation, "engine.hyde-generate",
			fmt.Errorf("queries length %d exceeds maxBatchSize %d", len(p.Queries), e.cfg.MaxBatchSize))
	}
	for i, q := range p.Queries {
		if len(q) > e.cfg.MaxTextLength {
			return nil, kgerr.New(kgerr.Validation, "engine.hyde-generate",
				fmt.Errorf("queries[%d] length %d exceeds maxTextLength %d", i, len(q), e.cfg.MaxTextLength))
		}
	}

	opts := hyde.DefaultOptions()
	if o := p.Options; o != nil {
		if o.HypothesesPerQuery != nil {
			opts.HypothesesPerQuery = *o.HypothesesPerQuery
		}
		if o.BaseTemperature != nil {
			opts.BaseTemperature = *o.BaseTemperature
		}
		if o.ReExtractEntities != nil {
			opts.ReExtractEntities = *o.ReExtractEntities
		}
	}

	start := time.Now()
	var hypotheses, entities int
	for _, q := range p.Queries {
		result, err := e.hydeEngine.Generate(ctx, q, opts)
		if err != nil {
			// A single query's hypothesis generation never aborts its
			// siblings; HyDE already degrades per-hypothesis internally.
			continue
		}
		hypotheses += len(result.Hypotheses)
		entities += len(result.Entities)
		e.mergeDataset(result.Dataset)
	}
	if e.metrics != nil {
		e.metrics.HydeDuration.Record(ctx, time.Since(start).Seconds())
	}

	return hydeGenerateResult{HypothesesCreated: hypotheses, EntitiesCreated: entities}, nil
}

// ─── hyde-query ──────────────────────────────────────────────────────────

type hydeQueryParams struct {
	Filters map[string]string `json:"filters,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

type quadPayload struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

type hypothesisPayload struct {
	URI   string        `json:"uri"`
	Quads []quadPayload `json:"quads"`
}

func handleHydeQuery(_ context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p hydeQueryParams
	if err := unmarshalParams(raw, "hyde-query", &p); err != nil {
		return nil, err
	}

	ds, _ := e.snapshot()
	hyps := hyde.Query(ds, p.Filters)
	if p.Limit > 0 && len(hyps) > p.Limit {
		hyps = hyps[:p.Limit]
	}

	out := make([]hypothesisPayload, len(hyps))
	for i, h := range hyps {
		quads := make([]quadPayload, len(h.Quads))
		for j, q := range h.Quads {
			quads[j] = quadPayload{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}
		}
		out[i] = hypothesisPayload{URI: h.Subject, Quads: quads}
	}
	return out, nil
}

// ─── search ──────────────────────────────────────────────────────────────

type searchParams struct {
	Query     string  `json:"query"`
	Type      string  `json:"type,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func handleSearch(ctx context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p searchParams
	if err := unmarshalParams(raw, "search", &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, kgerr.New(kgerr.Validation, "engine.search", errors.New("query is required"))
	}

	mode := search.Mode(p.Type)
	if mode == "" {
		mode = search.ModeDual
	}

	ds, _ := e.snapshot()
	s := e.newSearcher()

	start := time.Now()
	results, err := s.Search(ctx, ds, search.Request{
		Query:             p.Query,
		Mode:              mode,
		Limit:             p.Limit,
		SemanticThreshold: p.Threshold,
	})
	if e.metrics != nil {
		e.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ─── pipeline ────────────────────────────────────────────────────────────

type pipelineResult struct {
	Decompose  decomposeResult `json:"decompose"`
	Enrich     *enrichResult   `json:"enrich,omitempty"`
	EnrichSkip string          `json:"enrichSkipped,omitempty"`
	Communities []communityPayload `json:"communities"`
	Stats      statsResult     `json:"stats"`
}

// handlePipeline runs decompose -> enrich -> communities -> stats as a
// single call, per spec.md §4.8. Enrich is skipped (not failed) when no
// embedding provider or dimension is configured, since the pipeline's
// decompose output is still a complete, useful result on its own.
func handlePipeline(ctx context.Context, e *Engine, raw json.RawMessage) (any, error) {
	decomposed, err := handleDecompose(ctx, e, raw)
	if err != nil {
		return nil, err
	}
	out := pipelineResult{Decompose: decomposed.(decomposeResult)}

	if e.enricher != nil && e.cfg.VectorDimension > 0 {
		enriched, err := handleEnrich(ctx, e, nil)
		if err != nil {
			out.EnrichSkip = err.Error()
		} else {
			r := enriched.(enrichResult)
			out.Enrich = &r
		}
	} else {
		out.EnrichSkip = "no embeddings provider or vector dimension configured"
	}

	communities, err := handleCommunities(ctx, e, nil)
	if err != nil {
		return nil, err
	}
	out.Communities = communities.([]communityPayload)

	stats, err := handleStats(ctx, e, nil)
	if err != nil {
		return nil, err
	}
	out.Stats = stats.(statsResult)

	return out, nil
}

// ─── stats ───────────────────────────────────────────────────────────────

type statsResult struct {
	TotalQuads        int            `json:"totalQuads"`
	NodeCounts        map[string]int `json:"nodeCounts"`
	VectorIndexSize   int            `json:"vectorIndexSize"`
	VectorIndexDim    int            `json:"vectorIndexDimension,omitempty"`
}

var statsNodeTypes = []string{"Unit", "Entity", "Relationship", "Attribute", "CommunityElement"}

func handleStats(_ context.Context, e *Engine, _ json.RawMessage) (any, error) {
	ds, idx := e.snapshot()

	counts := make(map[string]int, len(statsNodeTypes))
	for _, t := range statsNodeTypes {
		counts[t] = len(ds.Subjects("kg:" + t))
	}

	out := statsResult{TotalQuads: ds.Len(), NodeCounts: counts}
	if idx != nil {
		st := idx.GetStatistics()
		out.VectorIndexSize = st.Size
		out.VectorIndexDim = st.Dimension
	}
	return out, nil
}

// ─── entities ────────────────────────────────────────────────────────────

type entitiesParams struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Type   string `json:"type,omitempty"`
	Name   string `json:"name,omitempty"`
}

type entityPayload struct {
	URI        string  `json:"uri"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Frequency  int     `json:"frequency"`
	SubType    string  `json:"subType,omitempty"`
}

func handleEntities(_ context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p entitiesParams
	if err := unmarshalParams(raw, "entities", &p); err != nil {
		return nil, err
	}

	ds, _ := e.snapshot()
	var out []entityPayload
	for _, uri := range ds.Subjects("kg:Entity") {
		subType := firstObject(ds, uri, "kg:subType")
		if p.Type != "" && subType != p.Type {
			continue
		}
		label := preferredLabel(ds, uri)
		if p.Name != "" && !containsFold(label, p.Name) {
			continue
		}
		out = append(out, entityPayload{
			URI:        uri,
			Label:      label,
			Confidence: parseFloat(firstObject(ds, uri, "kg:confidence")),
			Frequency:  int(parseFloat(firstObject(ds, uri, "kg:frequency"))),
			SubType:    subType,
		})
	}

	if p.Offset > 0 {
		if p.Offset >= len(out) {
			out = nil
		} else {
			out = out[p.Offset:]
		}
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// ─── communities ─────────────────────────────────────────────────────────

type communitiesParams struct {
	Algorithm string `json:"algorithm,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type communityPayload struct {
	URI      string   `json:"uri"`
	Members  []string `json:"members"`
	Cohesion float64  `json:"cohesion"`
	Summary  string   `json:"summary,omitempty"`
}

// handleCommunities lists already-minted CommunityElement nodes. Community
// *detection* is an external graph-analytic plug-in (see rdf.CommunityElement's
// doc comment); this handler only reports the resulting nodes that an
// external job has written into the dataset. No operation of this engine,
// pipeline included, mints them. Algorithm is accepted for forward compatibility with a future
// pluggable detector but does not currently filter or alter output.
func handleCommunities(_ context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p communitiesParams
	if err := unmarshalParams(raw, "communities", &p); err != nil {
		return nil, err
	}

	ds, _ := e.snapshot()
	var out []communityPayload
	for _, uri := range ds.Subjects("kg:CommunityElement") {
		var members []string
		for _, q := range ds.Match(graph.Pattern{Subject: uri, Predicate: "kg:hasMember"}) {
			members = append(members, q.Object)
		}
		out = append(out, communityPayload{
			URI:      uri,
			Members:  members,
			Cohesion: parseFloat(firstObject(ds, uri, "kg:cohesion")),
			Summary:  firstObject(ds, uri, "kg:content"),
		})
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// ─── export ──────────────────────────────────────────────────────────────

type exportParams struct {
	Format        string `json:"format"`
	FilterSubject string `json:"filter,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type exportResult struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

func handleExport(_ context.Context, e *Engine, raw json.RawMessage) (any, error) {
	var p exportParams
	if err := unmarshalParams(raw, "export", &p); err != nil {
		return nil, err
	}
	switch graph.Format(p.Format) {
	case graph.FormatTurtle, graph.FormatNTriples, graph.FormatJSONLD, graph.FormatJSON:
	default:
		return nil, kgerr.New(kgerr.Validation, "engine.export", fmt.Errorf("unsupported format %q", p.Format))
	}

	ds, _ := e.snapshot()
	content, err := ds.Export(graph.Format(p.Format), e.reg, graph.Filter{SubjectPrefix: p.FilterSubject, Limit: p.Limit})
	if err != nil {
		return nil, kgerr.New(kgerr.Internal, "engine.export", err)
	}
	return exportResult{Format: p.Format, Content: content}, nil
}

// ─── shared dataset-reading helpers ──────────────────────────────────────

func preferredLabel(ds *graph.Dataset, uri string) string {
	for _, q := range ds.Match(graph.Pattern{Subject: uri}) {
		if len(q.Predicate) > len("skos:prefLabel@") && q.Predicate[:len("skos:prefLabel@")] == "skos:prefLabel@" {
			return q.Object
		}
	}
	return ""
}

func firstObject(ds *graph.Dataset, subject, predicate string) string {
	matches := ds.Match(graph.Pattern{Subject: subject, Predicate: predicate})
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Object
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0
	}
	return v
}

func containsFold(haystack, needle string) bool {
	return len(needle) == 0 || indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	hl, nl := toLower(haystack), toLower(needle)
	for i := 0; i+len(nl) <= len(hl); i++ {
		if hl[i:i+len(nl)] == nl {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
