// Package search implements DualSearch (C9): vector-similarity ("semantic"),
// label-substring ("entities"), and weighted-merge ("dual") query modes over
// a dataset and its companion vector index. Grounded on the donor's
// pkg/memory/postgres/knowledge_graph.go QueryWithContext/QueryWithEmbedding
// pairing (full-text plus vector search combined into one ranked result
// set), adapted from Postgres-backed to in-memory dataset + vector.Index.
package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/kgerr"
	"github.com/kgweave/kgweave/pkg/provider/embeddings"
	"github.com/kgweave/kgweave/pkg/vector"
)

// Mode selects which retrieval strategy DualSearch runs.
type Mode string

const (
	// ModeDual runs both semantic and entities and merges the results.
	ModeDual Mode = "dual"
	// ModeEntities runs only the label-substring symbolic filter.
	ModeEntities Mode = "entities"
	// ModeSemantic runs only the vector-similarity query.
	ModeSemantic Mode = "semantic"
)

// Zoom names a result granularity: individual entities, or the parent
// unit/document they were mentioned in. Config.DefaultZoom stores it, but
// Search does not read it: every mode returns the URIs its own path finds
// (entity subjects for the symbolic filter, indexed URIs for the vector
// query), whatever the zoom. Left as an
// explicit config field per the recorded open question (default resolution
// favours entity-level results, matching C9's symbolic mode operating
// directly over kg:Entity subjects).
type Zoom string

const (
	ZoomEntity Zoom = "entity"
	ZoomCorpus Zoom = "corpus"
)

// Config tunes merge weighting and default zoom for a Searcher.
type Config struct {
	SemanticWeight float64
	SymbolicWeight float64
	DefaultZoom    Zoom
}

// DefaultConfig returns the spec's documented weighted-merge defaults
// (0.6 semantic + 0.4 symbolic) and entity-level zoom.
func DefaultConfig() Config {
	return Config{SemanticWeight: 0.6, SymbolicWeight: 0.4, DefaultZoom: ZoomEntity}
}

// Request is a single DualSearch call's parameters.
type Request struct {
	Query             string
	Mode              Mode
	Limit             int
	SemanticThreshold float64
}

// Result is one ranked hit, carrying enough to disambiguate ties and to
// report which retrieval path(s) contributed to its score.
type Result struct {
	URI          string
	Score        float64
	SemanticHit  bool
	SymbolicHit  bool
	Label        string
	CreatedAt    time.Time
	Metadata     map[string]string
}

// Searcher drives DualSearch against one vector index and embedding
// provider; the dataset is passed per call since it is the engine's shared,
// frequently-mutated substrate (not owned by the searcher).
type Searcher struct {
	idx      *vector.Index
	embedder embeddings.Provider
	cfg      Config
}

// New constructs a Searcher. idx may be nil if only entities-mode queries
// will ever be issued; Search returns a Validation error if a semantic or
// dual query is attempted with a nil index.
func New(idx *vector.Index, embedder embeddings.Provider, cfg Config) *Searcher {
	if cfg.SemanticWeight == 0 && cfg.SymbolicWeight == 0 {
		cfg = DefaultConfig()
	}
	if cfg.DefaultZoom == "" {
		cfg.DefaultZoom = ZoomEntity
	}
	return &Searcher{idx: idx, embedder: embedder, cfg: cfg}
}

// Search dispatches req.Mode against ds, returning at most req.Limit
// results ordered by descending score. In dual and entities mode ties are
// broken by earlier dc:created timestamp, per spec.md §4.7; semantic mode
// keeps the vector index's order, which breaks ties by insertion order.
// Config.DefaultZoom is not consulted.
func (s *Searcher) Search(ctx context.Context, ds *graph.Dataset, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	switch req.Mode {
	case "", ModeDual:
		return s.searchDual(ctx, ds, req, limit)
	case ModeEntities:
		return s.searchEntities(ds, req, limit), nil
	case ModeSemantic:
		return s.searchSemantic(ctx, req, limit)
	default:
		return nil, kgerr.New(kgerr.Validation, "search.Search", errInvalidMode(req.Mode))
	}
}

func errInvalidMode(m Mode) error {
	return &invalidModeError{mode: m}
}

type invalidModeError struct{ mode Mode }

func (e *invalidModeError) Error() string { return "search: unknown mode " + string(e.mode) }

// searchSemantic embeds req.Query and returns the vector index's nearest
// neighbours above req.SemanticThreshold.
func (s *Searcher) searchSemantic(ctx context.Context, req Request, limit int) ([]Result, error) {
	if s.idx == nil {
		return nil, kgerr.New(kgerr.Validation, "search.searchSemantic", errNoIndex)
	}
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, kgerr.New(kgerr.Embedding, "search.searchSemantic", err)
	}
	hits, err := s.idx.Search(vec, limit, vector.SearchOptions{MinScore: req.SemanticThreshold})
	if err != nil {
		return nil, kgerr.New(kgerr.Index, "search.searchSemantic", err)
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{URI: h.URI, Score: h.Similarity, SemanticHit: true, Metadata: h.Metadata}
	}
	return out, nil
}

var errNoIndex = indexRequiredError{}

type indexRequiredError struct{}

func (indexRequiredError) Error() string { return "search: vector index is required for this mode" }

// searchEntities runs a case-insensitive label-substring filter over every
// kg:Entity subject in ds, ranked by descending stored confidence.
func (s *Searcher) searchEntities(ds *graph.Dataset, req Request, limit int) []Result {
	needle := strings.ToLower(strings.TrimSpace(req.Query))

	type hit struct {
		uri        string
		label      string
		confidence float64
		created    time.Time
	}
	var hits []hit

	for _, uri := range ds.Subjects("kg:Entity") {
		label := preferredLabel(ds, uri)
		if needle != "" && !strings.Contains(strings.ToLower(label), needle) {
			continue
		}
		hits = append(hits, hit{
			uri:        uri,
			label:      label,
			confidence: parseFloat(firstObject(ds, uri, "kg:confidence")),
			created:    parseTime(firstObject(ds, uri, "dc:created")),
		})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].confidence != hits[b].confidence {
			return hits[a].confidence > hits[b].confidence
		}
		return hits[a].created.Before(hits[b].created)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{URI: h.uri, Score: h.confidence, SymbolicHit: true, Label: h.label, CreatedAt: h.created}
	}
	return out
}

// searchDual runs both modes and merges their weighted scores, deduping by
// URI (keeping the higher of the two weighted scores when both modes hit
// the same node), ties broken by earlier creation timestamp.
func (s *Searcher) searchDual(ctx context.Context, ds *graph.Dataset, req Request, limit int) ([]Result, error) {
	semantic, err := s.searchSemantic(ctx, req, limit)
	if err != nil {
		// A dual query with no usable index degrades to symbolic-only,
		// matching the graceful-degradation idiom used elsewhere in this
		// module rather than failing the whole request.
		if kgerr.Is(err, kgerr.Validation) {
			semantic = nil
		} else {
			return nil, err
		}
	}
	symbolic := s.searchEntities(ds, req, limit)

	merged := make(map[string]*Result)
	order := make([]string, 0, len(semantic)+len(symbolic))

	for _, r := range semantic {
		r := r
		weighted := r.Score * s.cfg.SemanticWeight
		merged[r.URI] = &Result{
			URI: r.URI, Score: weighted, SemanticHit: true, Metadata: r.Metadata,
			Label: preferredLabel(ds, r.URI), CreatedAt: parseTime(firstObject(ds, r.URI, "dc:created")),
		}
		order = append(order, r.URI)
	}
	for _, r := range symbolic {
		r := r
		weighted := r.Score * s.cfg.SymbolicWeight
		if existing, ok := merged[r.URI]; ok {
			existing.SymbolicHit = true
			if weighted > existing.Score {
				// keep the larger constituent contribution visible via Label/CreatedAt
				existing.Score = weighted
				existing.Label = r.Label
				existing.CreatedAt = r.CreatedAt
			}
			continue
		}
		merged[r.URI] = &Result{
			URI: r.URI, Score: weighted, SymbolicHit: true,
			Label: r.Label, CreatedAt: r.CreatedAt,
		}
		order = append(order, r.URI)
	}

	out := make([]Result, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, uri := range order {
		if _, dup := seen[uri]; dup {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, *merged[uri])
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func preferredLabel(ds *graph.Dataset, uri string) string {
	for _, q := range ds.Match(graph.Pattern{Subject: uri}) {
		if strings.HasPrefix(q.Predicate, "skos:prefLabel@") {
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
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
