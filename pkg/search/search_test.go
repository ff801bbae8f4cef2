package search

import (
	"context"
	"testing"
	"time"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/rdf"
	"github.com/kgweave/kgweave/pkg/vector"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }
func (f *fakeEmbedder) ModelID() string { return "fake" }

func buildEntity(t *testing.T, reg *rdf.Registry, now time.Time, ds *graph.Dataset, label string, confidence float64) *rdf.Entity {
	t.Helper()
	e := rdf.NewEntity(reg, now, "en", label, confidence)
	e.Export(ds.Exporter())
	return e
}

func TestSearchEntitiesFiltersAndRanksByConfidence(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()

	buildEntity(t, reg, now, ds, "Alice Smith", 0.9)
	buildEntity(t, reg, now, ds, "Alice Cooper", 0.5)
	buildEntity(t, reg, now, ds, "Bob Jones", 0.95)

	s := New(nil, &fakeEmbedder{}, DefaultConfig())
	results, err := s.Search(context.Background(), ds, Request{Query: "alice", Mode: ModeEntities, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results matching 'alice', got %d: %+v", len(results), results)
	}
	if results[0].Label != "Alice Smith" {
		t.Fatalf("expected highest-confidence match first, got %q", results[0].Label)
	}
}

func TestSearchSemanticRequiresIndex(t *testing.T) {
	s := New(nil, &fakeEmbedder{vec: []float32{1, 0, 0}}, DefaultConfig())
	ds := graph.NewDataset()
	_, err := s.Search(context.Background(), ds, Request{Query: "x", Mode: ModeSemantic, Limit: 5})
	if err == nil {
		t.Fatal("expected error for semantic search with nil index")
	}
}

func TestSearchSemanticReturnsIndexHits(t *testing.T) {
	idx := vector.New(vector.Params{Dimension: 3})
	if err := idx.AddNode("u1", []float32{1, 0, 0}, map[string]string{"kind": "Unit"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	s := New(idx, &fakeEmbedder{vec: []float32{1, 0, 0}}, DefaultConfig())
	ds := graph.NewDataset()

	results, err := s.Search(context.Background(), ds, Request{Query: "x", Mode: ModeSemantic, Limit: 5, SemanticThreshold: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].URI != "u1" {
		t.Fatalf("expected u1 hit, got %+v", results)
	}
}

func TestSearchDualMergesAndDedupes(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()

	u, err := rdf.NewUnit(reg, now, "alice appears in both semantic and symbolic hits", "doc", 0)
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	u.Export(ds.Exporter())

	e := rdf.NewEntity(reg, now, "en", "Alice Example", 0.8)
	e.Export(ds.Exporter())

	idx := vector.New(vector.Params{Dimension: 3})
	if err := idx.AddNode(u.URI(), []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	s := New(idx, &fakeEmbedder{vec: []float32{1, 0, 0}}, DefaultConfig())
	results, err := s.Search(context.Background(), ds, Request{Query: "alice", Mode: ModeDual, Limit: 10, SemanticThreshold: 0.1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 merged results (unit + entity), got %d: %+v", len(results), results)
	}

	seen := make(map[string]bool)
	for _, r := range results {
		if seen[r.URI] {
			t.Fatalf("duplicate URI in dual results: %s", r.URI)
		}
		seen[r.URI] = true
	}
}

func TestSearchDualDegradesToSymbolicWithoutIndex(t *testing.T) {
	now := time.Now()
	reg := rdf.NewRegistry("https://kg.test/instance")
	ds := graph.NewDataset()
	buildEntity(t, reg, now, ds, "Standalone Entity", 0.7)

	s := New(nil, &fakeEmbedder{}, DefaultConfig())
	results, err := s.Search(context.Background(), ds, Request{Query: "standalone", Mode: ModeDual, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 symbolic-only result, got %d", len(results))
	}
}
