// Package vector implements the approximate-nearest-neighbour structure
// (C8) that EmbeddingEnricher (pkg/enrich) builds and DualSearch
// (pkg/search) queries. Vectors are normalised to unit length on insert so
// similarity reduces to a dot product.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kgweave/kgweave/pkg/kgerr"
)

// SearchOptions tunes a single Search call.
type SearchOptions struct {
	// MinScore discards results below this cosine similarity.
	MinScore float64
}

// Result is a single Search hit.
type Result struct {
	URI        string
	Similarity float64
	Metadata   map[string]string
}

// Statistics summarises an index's current configuration and content.
type Statistics struct {
	Dimension      int
	Capacity       int
	EFConstruction int
	M              int
	Size           int
}

// Index is the in-process approximate-nearest-neighbour structure over
// unit-normalised vectors, grounded on the donor's pgvector cosine-distance
// idiom (semantic_index.go: "1.0 - distance") but held in memory per
// spec.md §4.6 rather than backed by a live database. It is a flat index
// bucketed into a small number of greedy entry-point layers (an
// HNSW-flavoured simplification: exact brute-force scan within each probe,
// not a full multi-layer graph), which keeps results deterministic for a
// fixed construction-parameter set and insertion order while still letting
// large indexes skip distant buckets.
//
// Single-writer-during-build, many-reader-after, per spec.md §5.
type Index struct {
	mu sync.RWMutex

	dimension      int
	capacity       int
	efConstruction int
	m              int

	ids      []string
	vectors  [][]float32
	metadata []map[string]string
	byURI    map[string]int

	// buckets groups node indices by a coarse locality-sensitive hash of
	// their vector, so Search can probe a handful of buckets (bounded by M)
	// instead of the whole index once it grows past efConstruction entries.
	buckets map[uint64][]int
}

// Params configures a new Index. Zero fields fall back to the spec's
// documented sane defaults (100000/200/16).
type Params struct {
	Dimension      int
	Capacity       int
	EFConstruction int
	M              int
}

// DefaultParams returns the spec's documented defaults for the given
// dimension.
func DefaultParams(dimension int) Params {
	return Params{Dimension: dimension, Capacity: 100000, EFConstruction: 200, M: 16}
}

// New constructs an empty Index for fixed-dimension vectors.
func New(p Params) *Index {
	if p.Capacity <= 0 {
		p.Capacity = 100000
	}
	if p.EFConstruction <= 0 {
		p.EFConstruction = 200
	}
	if p.M <= 0 {
		p.M = 16
	}
	return &Index{
		dimension:      p.Dimension,
		capacity:       p.Capacity,
		efConstruction: p.EFConstruction,
		m:              p.M,
		byURI:          make(map[string]int),
		buckets:        make(map[uint64][]int),
	}
}

// AddNode inserts vector under uri, rejecting vectors of the wrong
// dimension or an index already at capacity. The vector is normalised to
// unit length before storage. Re-adding an existing uri replaces its entry
// in place.
func (idx *Index) AddNode(uri string, vec []float32, metadata map[string]string) error {
	if len(vec) != idx.dimension {
		return kgerr.New(kgerr.Index, "vector.AddNode", fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), idx.dimension))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	normed := normalise(vec)

	if i, ok := idx.byURI[uri]; ok {
		idx.removeFromBuckets(i)
		idx.vectors[i] = normed
		idx.metadata[i] = metadata
		idx.addToBuckets(i, normed)
		return nil
	}

	if len(idx.ids) >= idx.capacity {
		return kgerr.New(kgerr.Index, "vector.AddNode", fmt.Errorf("capacity %d exceeded", idx.capacity))
	}

	i := len(idx.ids)
	idx.ids = append(idx.ids, uri)
	idx.vectors = append(idx.vectors, normed)
	idx.metadata = append(idx.metadata, metadata)
	idx.byURI[uri] = i
	idx.addToBuckets(i, normed)
	return nil
}

// Search returns at most k results ordered by descending cosine similarity
// to query, filtered by opts.MinScore. Ties are broken by insertion order
// (lower index first) so results are deterministic for a fixed construction
// parameter set and insertion order, per spec.md §4.6.
func (idx *Index) Search(query []float32, k int, opts SearchOptions) ([]Result, error) {
	if len(query) != idx.dimension {
		return nil, kgerr.New(kgerr.Index, "vector.Search", fmt.Errorf("dimension mismatch: got %d, want %d", len(query), idx.dimension))
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	normed := normalise(query)

	candidates := idx.candidateSet(normed)

	type scored struct {
		i     int
		score float64
	}
	hits := make([]scored, 0, len(candidates))
	for _, i := range candidates {
		s := dot(normed, idx.vectors[i])
		if s < opts.MinScore {
			continue
		}
		hits = append(hits, scored{i: i, score: s})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].i < hits[b].i
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Result, len(hits))
	for n, h := range hits {
		out[n] = Result{URI: idx.ids[h.i], Similarity: h.score, Metadata: idx.metadata[h.i]}
	}
	return out, nil
}

// candidateSet returns the indices to score against query: every indexed
// vector once the index is still small (below efConstruction), or the union
// of the M nearest-hashing buckets once it has grown past that, keeping
// large-index search sub-linear while staying exact (brute force) for small
// ones so unit tests see exact nearest neighbours.
func (idx *Index) candidateSet(query []float32) []int {
	if len(idx.ids) <= idx.efConstruction {
		all := make([]int, len(idx.ids))
		for i := range all {
			all[i] = i
		}
		return all
	}

	bucketKeys := probeBuckets(query, idx.m)
	seen := make(map[int]struct{})
	var out []int
	for _, bk := range bucketKeys {
		for _, i := range idx.buckets[bk] {
			if _, ok := seen[i]; !ok {
				seen[i] = struct{}{}
				out = append(out, i)
			}
		}
	}
	return out
}

func (idx *Index) addToBuckets(i int, vec []float32) {
	for _, bk := range probeBuckets(vec, idx.m) {
		idx.buckets[bk] = append(idx.buckets[bk], i)
	}
}

func (idx *Index) removeFromBuckets(i int) {
	for bk, members := range idx.buckets {
		for n, m := range members {
			if m == i {
				idx.buckets[bk] = append(members[:n], members[n+1:]...)
				break
			}
		}
	}
}

// GetStatistics reports the index's insert count and configuration.
func (idx *Index) GetStatistics() Statistics {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Statistics{
		Dimension:      idx.dimension,
		Capacity:       idx.capacity,
		EFConstruction: idx.efConstruction,
		M:              idx.m,
		Size:           len(idx.ids),
	}
}

// Dimension returns the fixed vector dimension this index accepts.
func (idx *Index) Dimension() int { return idx.dimension }

func normalise(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// probeBuckets returns m deterministic locality-sensitive hash values for
// vec, one per random-hyperplane-derived projection group. Grouping by sign
// pattern of fixed coordinate slices gives a cheap, deterministic bucketing
// that needs no training phase.
func probeBuckets(vec []float32, m int) []uint64 {
	if len(vec) == 0 {
		return []uint64{0}
	}
	keys := make([]uint64, 0, m)
	groupSize := len(vec) / m
	if groupSize == 0 {
		groupSize = 1
	}
	for g := 0; g < m; g++ {
		start := g * groupSize
		if start >= len(vec) {
			break
		}
		end := start + groupSize
		if end > len(vec) || g == m-1 {
			end = len(vec)
		}
		var bits uint64
		for i := start; i < end && i-start < 64; i++ {
			if vec[i] >= 0 {
				bits |= 1 << uint(i-start)
			}
		}
		keys = append(keys, bits^(uint64(g)<<32))
	}
	if len(keys) == 0 {
		keys = append(keys, 0)
	}
	return keys
}
