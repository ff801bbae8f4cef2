package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/rdf"
)

// fakeEmbedder returns a distinct, caller-supplied vector per text so tests
// can arrange orthogonal or identical embedding scenarios; the shared mock
// in pkg/provider/embeddings/mock only supports a single fixed response, so
// this package defines its own small test double instead.
type fakeEmbedder struct {
	byText map[string][]float32
	dim    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.byText[text], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.byText[t]
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) ModelID() string { return "fake-test-embedder" }

func newTestUnit(t *testing.T, reg *rdf.Registry, now time.Time, content, source string, pos int) *rdf.Unit {
	t.Helper()
	u, err := rdf.NewUnit(reg, now, content, source, pos)
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	return u
}

// TestEnrichOrthogonalVectorsNoSimilarityEdges mirrors spec.md §8 scenario 4:
// units whose embeddings are mutually orthogonal should produce zero
// similarity edges at the default 0.7 threshold.
func TestEnrichOrthogonalVectorsNoSimilarityEdges(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()

	contents := []string{
		"the quick brown fox jumps over the lazy dog today",
		"quarterly revenue figures exceeded analyst expectations broadly",
		"the mitochondria is the powerhouse of the biological cell",
	}
	vectors := map[string][]float32{
		contents[0]: {1, 0, 0},
		contents[1]: {0, 1, 0},
		contents[2]: {0, 0, 1},
	}
	for i, c := range contents {
		u := newTestUnit(t, reg, now, c, "doc-1", i)
		u.Export(ds.Exporter())
	}

	embedder := &fakeEmbedder{byText: vectors, dim: 3}
	enricher := New(reg, embedder, func() time.Time { return now })

	cfg := DefaultConfig(3)
	result, err := enricher.Enrich(context.Background(), ds, cfg)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Statistics.EmbeddingsGenerated != 3 {
		t.Fatalf("expected 3 embeddings generated, got %d", result.Statistics.EmbeddingsGenerated)
	}
	if len(result.SimilarityLinks) != 0 {
		t.Fatalf("expected 0 similarity links for orthogonal vectors, got %d", len(result.SimilarityLinks))
	}
	if result.Statistics.SimilarityLinksCreated != 0 {
		t.Fatalf("expected SimilarityLinksCreated=0, got %d", result.Statistics.SimilarityLinksCreated)
	}
}

// TestEnrichIdenticalEmbeddingsLinkAndIdempotent mirrors spec.md §8 scenario
// 5: three units sharing an identical embedding should be fully linked by
// "similar_to" edges, a fourth/fifth unrelated unit should not be touched,
// and re-running Enrich on the same dataset must not duplicate edges.
func TestEnrichIdenticalEmbeddingsLinkAndIdempotent(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()

	shared := []string{
		"alpha bravo charlie delta echo foxtrot golf hotel india",
		"alpha bravo charlie delta echo foxtrot golf hotel juliet",
		"alpha bravo charlie delta echo foxtrot golf hotel kilo",
	}
	unrelated := []string{
		"lorem ipsum dolor sit amet consectetur adipiscing elit",
		"totally different unrelated subject matter about astronomy",
	}

	vectors := map[string][]float32{
		shared[0]:    {1, 1, 0},
		shared[1]:    {1, 1, 0},
		shared[2]:    {1, 1, 0},
		unrelated[0]: {0, 0, 1},
		unrelated[1]: {-1, 0, 0},
	}

	pos := 0
	uriByContent := map[string]string{}
	for _, c := range append(append([]string{}, shared...), unrelated...) {
		u := newTestUnit(t, reg, now, c, "doc-2", pos)
		u.Export(ds.Exporter())
		uriByContent[c] = u.URI()
		pos++
	}

	embedder := &fakeEmbedder{byText: vectors, dim: 3}
	enricher := New(reg, embedder, func() time.Time { return now })
	cfg := DefaultConfig(3)

	first, err := enricher.Enrich(context.Background(), ds, cfg)
	if err != nil {
		t.Fatalf("first Enrich: %v", err)
	}
	if len(first.SimilarityLinks) != 3 {
		t.Fatalf("expected 3 canonical similar_to edges among the 3 identical units, got %d", len(first.SimilarityLinks))
	}
	for _, rel := range first.SimilarityLinks {
		for _, c := range unrelated {
			if rel.Source == uriByContent[c] || rel.Target == uriByContent[c] {
				t.Fatalf("unrelated unit unexpectedly linked: %+v", rel)
			}
		}
	}

	second, err := enricher.Enrich(context.Background(), ds, cfg)
	if err != nil {
		t.Fatalf("second Enrich: %v", err)
	}
	if len(second.SimilarityLinks) != 0 {
		t.Fatalf("expected second Enrich on the same dataset to create 0 new edges, got %d", len(second.SimilarityLinks))
	}

	totalSimilarEdges := 0
	for _, subj := range ds.Subjects("kg:Relationship") {
		for _, q := range ds.Match(graph.Pattern{Subject: subj, Predicate: "kg:relType", Object: "similar_to"}) {
			_ = q
			totalSimilarEdges++
		}
	}
	if totalSimilarEdges != 3 {
		t.Fatalf("expected exactly 3 similar_to relationships in the dataset after both runs, got %d", totalSimilarEdges)
	}
}

// TestEnrichZeroCandidatesShortCircuits covers spec.md §8's boundary case:
// zero retrievable nodes returns a well-formed, zero-value Result rather
// than an error.
func TestEnrichZeroCandidatesShortCircuits(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()
	embedder := &fakeEmbedder{byText: map[string][]float32{}, dim: 3}
	enricher := New(reg, embedder, nil)

	result, err := enricher.Enrich(context.Background(), ds, DefaultConfig(3))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.VectorIndex != nil {
		t.Fatalf("expected nil VectorIndex for zero candidates, got %+v", result.VectorIndex)
	}
	if len(result.SimilarityLinks) != 0 {
		t.Fatalf("expected 0 similarity links, got %d", len(result.SimilarityLinks))
	}
	if result.Statistics.NodesProcessed != 0 {
		t.Fatalf("expected NodesProcessed=0, got %d", result.Statistics.NodesProcessed)
	}
}

// TestEnrichRejectsUnconfiguredDimension ensures the explicit-dimension
// configuration requirement (spec.md §9) is enforced rather than silently
// defaulted.
func TestEnrichRejectsUnconfiguredDimension(t *testing.T) {
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()
	enricher := New(reg, &fakeEmbedder{dim: 3}, nil)

	if _, err := enricher.Enrich(context.Background(), ds, Config{}); err == nil {
		t.Fatal("expected error for unconfigured Dimension")
	}
}

// TestEnrichFailedEmbeddingsAreCounted verifies nodes whose embedding call
// returns a dimension-mismatched vector are skipped and counted as failed,
// not silently indexed.
func TestEnrichFailedEmbeddingsAreCounted(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()

	good := "a perfectly good unit of embeddable content here"
	bad := "a unit whose embedder misbehaves and returns the wrong size"

	u1 := newTestUnit(t, reg, now, good, "doc-3", 0)
	u1.Export(ds.Exporter())
	u2 := newTestUnit(t, reg, now, bad, "doc-3", 1)
	u2.Export(ds.Exporter())

	embedder := &fakeEmbedder{
		byText: map[string][]float32{
			good: {1, 0, 0},
			bad:  {1, 0}, // wrong dimension
		},
		dim: 3,
	}
	enricher := New(reg, embedder, func() time.Time { return now })

	result, err := enricher.Enrich(context.Background(), ds, DefaultConfig(3))
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if result.Statistics.EmbeddingsGenerated != 1 {
		t.Fatalf("expected 1 successful embedding, got %d", result.Statistics.EmbeddingsGenerated)
	}
	if result.Statistics.FailedEmbeddings != 1 {
		t.Fatalf("expected 1 failed embedding, got %d", result.Statistics.FailedEmbeddings)
	}
}
