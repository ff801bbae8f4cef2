// Package enrich implements the embedding enrichment pipeline (C7):
// retrievable-node selection, batched embedding, ANN index build, and
// similarity-edge materialisation. Grounded on the donor's
// pkg/memory/postgres/semantic_index.go (distance-to-score idiom, upsert-
// by-URI) and pkg/provider/embeddings/ollama/ollama.go (batched-call shape,
// dimension validation).
package enrich

import (
	"context"
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kgweave/kgweave/internal/observe"
	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/provider/embeddings"
	"github.com/kgweave/kgweave/pkg/rdf"
	"github.com/kgweave/kgweave/pkg/vector"
)

// DefaultRetrievableTypes is the default set of ontology types eligible for
// embedding: Unit, Attribute, CommunityElement, and a generic TextElement
// type for nodes produced outside this module's own typed models.
var DefaultRetrievableTypes = []string{"Unit", "Attribute", "CommunityElement", "TextElement"}

// maxEmbedInputChars bounds text handed to the embedding handler; longer
// text is truncated with an ellipsis per spec.md §6 ("callers truncate
// longer inputs with an ellipsis").
const maxEmbedInputChars = 8000

// Config tunes a single Enrich call. Dimension is required, explicit,
// engine-level configuration (spec.md §9's embedding-dimension open
// question): vectors of any other length are excluded from the index, not
// coerced.
type Config struct {
	RetrievableTypes    []string
	BatchSize           int
	SimilarityThreshold float64
	LinkAcrossTypes     bool
	Dimension           int
	IndexParams         vector.Params
}

// DefaultConfig returns the spec's documented defaults for the given fixed
// embedding dimension.
func DefaultConfig(dimension int) Config {
	return Config{
		RetrievableTypes:    append([]string(nil), DefaultRetrievableTypes...),
		BatchSize:           50,
		SimilarityThreshold: 0.7,
		LinkAcrossTypes:     true,
		Dimension:           dimension,
		IndexParams:         vector.DefaultParams(dimension),
	}
}

// EmbeddingRecord is one successful (uri, vector, metadata) tuple from
// phase 2, kept in the returned embeddings map. Raw vectors also live in the
// vector index; this map is the engine-facing view of the same data plus
// the metadata that was additionally materialised as dataset triples.
type EmbeddingRecord struct {
	Vector   []float32
	Metadata map[string]string
}

// Statistics summarises one Enrich call.
type Statistics struct {
	ProcessingTimeMs       int64
	NodesProcessed         int
	EmbeddingsGenerated    int
	FailedEmbeddings       int
	VectorsIndexed         int
	SimilarityLinksCreated int
	AverageScore           float64
	IndexStatistics        vector.Statistics
}

// Result is the output of a single Enrich call.
type Result struct {
	VectorIndex     *vector.Index
	Embeddings      map[string]EmbeddingRecord
	SimilarityLinks []*rdf.Relationship
	Dataset         *graph.Dataset
	Statistics      Statistics
}

// Enricher drives the four-phase enrichment pipeline against one embedding
// provider.
type Enricher struct {
	reg      *rdf.Registry
	embedder embeddings.Provider
	now      func() time.Time
}

// New constructs an Enricher scoped to reg (for URI minting / relationship
// construction) and provider (for embedding calls).
func New(reg *rdf.Registry, provider embeddings.Provider, now func() time.Time) *Enricher {
	if now == nil {
		now = time.Now
	}
	return &Enricher{reg: reg, embedder: provider, now: now}
}

type candidate struct {
	uri  string
	kind string
	text string
}

// Enrich runs phase 1-4 of the embedding enrichment pipeline over ds,
// returning an empty but well-formed Result (VectorIndex=nil) when zero
// nodes are selected or zero vectors end up indexed, per spec.md §4.5.
func (e *Enricher) Enrich(ctx context.Context, ds *graph.Dataset, cfg Config) (*Result, error) {
	start := time.Now()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if len(cfg.RetrievableTypes) == 0 {
		cfg.RetrievableTypes = DefaultRetrievableTypes
	}
	if cfg.Dimension <= 0 {
		return nil, kgerr.New(kgerr.Validation, "enrich.Enrich", fmt.Errorf("Config.Dimension must be explicitly configured and positive"))
	}

	candidates := selectCandidates(ds, cfg.RetrievableTypes)
	stats := Statistics{NodesProcessed: len(candidates)}

	if len(candidates) == 0 {
		stats.ProcessingTimeMs = time.Since(start).Milliseconds()
		return &Result{Dataset: ds, Embeddings: map[string]EmbeddingRecord{}, Statistics: stats}, nil
	}

	vectors, failed := e.embedBatches(ctx, candidates, cfg)
	stats.EmbeddingsGenerated = len(vectors)
	stats.FailedEmbeddings = failed

	if len(vectors) == 0 {
		stats.ProcessingTimeMs = time.Since(start).Milliseconds()
		return &Result{Dataset: ds, Embeddings: map[string]EmbeddingRecord{}, Statistics: stats}, nil
	}

	idx := vector.New(cfg.IndexParams)
	embMap := make(map[string]EmbeddingRecord, len(vectors))
	kindByURI := make(map[string]string, len(vectors))
	now := e.now()

	// Insertion order is fixed (candidates slice order) so index build and
	// therefore similarity edges are deterministic across runs, per
	// spec.md §4.6.
	order := make([]string, 0, len(vectors))
	for _, c := range candidates {
		rec, ok := vectors[c.uri]
		if !ok {
			continue
		}
		metadata := map[string]string{
			"nodeType":  c.kind,
			"textLen":   strconv.Itoa(len(c.text)),
			"hasContent": strconv.FormatBool(c.text != ""),
			"timestamp": now.Format(time.RFC3339Nano),
		}
		if err := idx.AddNode(c.uri, rec, metadata); err != nil {
			stats.FailedEmbeddings++
			continue
		}
		embMap[c.uri] = EmbeddingRecord{Vector: rec, Metadata: metadata}
		kindByURI[c.uri] = c.kind
		order = append(order, c.uri)

		ds.AddQuad(c.uri, "kg:hasEmbedding", "true", "")
		ds.AddQuad(c.uri, "kg:embeddingDimensions", strconv.Itoa(cfg.Dimension), "")
		ds.AddQuad(c.uri, "kg:embeddingTimestamp", now.Format(time.RFC3339Nano), "")
		ds.AddQuad(c.uri, "kg:embeddingNodeType", c.kind, "")
	}

	stats.VectorsIndexed = len(order)
	stats.IndexStatistics = idx.GetStatistics()

	if len(order) == 0 {
		stats.ProcessingTimeMs = time.Since(start).Milliseconds()
		return &Result{Dataset: ds, Embeddings: embMap, Statistics: stats}, nil
	}

	vecByURI := make(map[string][]float32, len(order))
	for _, uri := range order {
		vecByURI[uri] = embMap[uri].Vector
	}

	links, avgScore, err := e.materialiseSimilarityEdges(ds, idx, order, vecByURI, kindByURI, cfg)
	if err != nil {
		return nil, err
	}
	stats.SimilarityLinksCreated = len(links)
	stats.AverageScore = avgScore
	stats.ProcessingTimeMs = time.Since(start).Milliseconds()

	return &Result{
		VectorIndex:     idx,
		Embeddings:      embMap,
		SimilarityLinks: links,
		Dataset:         ds,
		Statistics:      stats,
	}, nil
}

// selectCandidates walks ds collecting subjects whose rdf:type is in types,
// extracting embeddable text per node (prefer skos:definition/summary, fall
// back to kg:content, skip if empty after trim).
func selectCandidates(ds *graph.Dataset, types []string) []candidate {
	seen := make(map[string]struct{})
	var out []candidate
	for _, t := range types {
		for _, uri := range ds.Subjects("kg:" + t) {
			if _, ok := seen[uri]; ok {
				continue
			}
			seen[uri] = struct{}{}

			text := strings.TrimSpace(firstObject(ds, uri, "skos:definition"))
			if text == "" {
				text = strings.TrimSpace(firstObject(ds, uri, "kg:content"))
			}
			if text == "" {
				continue
			}
			if len(text) > maxEmbedInputChars {
				text = text[:maxEmbedInputChars] + "..."
			}
			out = append(out, candidate{uri: deterministicURI(uri, t, text), kind: t, text: text})
		}
	}
	return out
}

// deterministicURI returns uri unchanged; it exists to document spec.md
// §4.5's "if a node has no URI, mint one as <kind>:<md5(content)>" rule.
// That case cannot arise from selectCandidates's subject-indexed quad walk
// (a quad's subject is never empty by construction), so it is handled here
// only for callers that might someday feed candidates without a dataset
// subject.
func deterministicURI(uri, kind, text string) string {
	if uri != "" {
		return uri
	}
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("%s:%x", kind, sum)
}

func firstObject(ds *graph.Dataset, subject, predicate string) string {
	matches := ds.Match(graph.Pattern{Subject: subject, Predicate: predicate})
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Object
}

// embedBatches runs phase 2: batched, bounded-parallel embedding calls.
// Concurrency is capped at 2*BatchSize in-flight, matching spec.md §5's
// backpressure rule ("pauses batch submission until in-flight count drops
// below 2*B") collapsed into a single semaphore since no downstream
// consumer in this package is slower than the embedding calls themselves.
func (e *Enricher) embedBatches(ctx context.Context, candidates []candidate, cfg Config) (map[string][]float32, int) {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(2 * cfg.BatchSize))

	var mu sync.Mutex
	results := make(map[string][]float32, len(candidates))
	failed := 0

	for _, c := range candidates {
		c := c
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			vec, err := e.embedder.Embed(gctx, c.text)
			if err != nil {
				observe.Logger(gctx).Warn("enrich: embedding call failed, skipping node",
					"uri", c.uri, "kind", c.kind, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			if len(vec) == 0 || len(vec) != cfg.Dimension {
				observe.Logger(gctx).Warn("enrich: embedding dimension mismatch or empty vector, skipping node",
					"uri", c.uri, "kind", c.kind, "got", len(vec), "want", cfg.Dimension)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			results[c.uri] = vec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, failed
}

// materialiseSimilarityEdges runs phase 4: for each indexed node, query its
// top-k neighbours (k = min(10, N-1)) above cfg.SimilarityThreshold,
// creating a canonical-single "similar_to" Relationship per newly-seen pair.
// Pairs already linked in ds (from a prior Enrich call on the same dataset)
// are skipped, making repeated enrichment idempotent per spec.md §8.
func (e *Enricher) materialiseSimilarityEdges(ds *graph.Dataset, idx *vector.Index, order []string, vecByURI map[string][]float32, kindByURI map[string]string, cfg Config) ([]*rdf.Relationship, float64, error) {
	n := len(order)
	k := 10
	if n-1 < k {
		k = n - 1
	}
	if k <= 0 {
		return nil, 0, nil
	}

	processed := existingSimilarPairs(ds)
	var links []*rdf.Relationship
	var totalScore float64

	for _, uri := range order {
		vec, ok := vecByURI[uri]
		if !ok {
			continue
		}
		results, err := idx.Search(vec, k+1, vector.SearchOptions{MinScore: cfg.SimilarityThreshold})
		if err != nil {
			return nil, 0, kgerr.New(kgerr.Index, "enrich.materialiseSimilarityEdges", err)
		}

		for _, r := range results {
			if r.URI == uri {
				continue
			}
			if !cfg.LinkAcrossTypes && kindByURI[r.URI] != kindByURI[uri] {
				continue
			}
			key := canonicalKey(uri, r.URI)
			if processed[key] {
				continue
			}
			processed[key] = true

			a, b := orderedPair(uri, r.URI)
			now := e.now()
			rel, err := rdf.NewRelationship(e.reg, now, a, b, "similar_to", r.Similarity)
			if err != nil {
				continue
			}
			rel.Bidirectional = true
			rel.Description = "vector similarity"
			rel.Export(ds.Exporter())

			links = append(links, rel)
			totalScore += r.Similarity
		}
	}

	avg := 0.0
	if len(links) > 0 {
		avg = totalScore / float64(len(links))
	}
	return links, avg, nil
}

// existingSimilarPairs scans ds for already-materialised "similar_to"
// relationships and returns their canonical pair keys, so a second Enrich
// call on the same dataset does not duplicate similarity edges.
func existingSimilarPairs(ds *graph.Dataset) map[string]bool {
	out := make(map[string]bool)
	for _, subj := range ds.Subjects("kg:Relationship") {
		if firstObject(ds, subj, "kg:relType") != "similar_to" {
			continue
		}
		src := firstObject(ds, subj, "kg:source")
		tgt := firstObject(ds, subj, "kg:target")
		if src == "" || tgt == "" {
			continue
		}
		out[canonicalKey(src, tgt)] = true
	}
	return out
}

// canonicalKey returns a deterministic, order-independent key for the pair
// (a,b), so similarity edges are stored once regardless of discovery order.
func canonicalKey(a, b string) string {
	lo, hi := orderedPair(a, b)
	return lo + "\x00" + hi
}

func orderedPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

