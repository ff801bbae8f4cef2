package vector

import (
	"bytes"
	"testing"
)

func TestAddNodeDimensionMismatch(t *testing.T) {
	idx := New(Params{Dimension: 3})
	if err := idx.AddNode("u1", []float32{1, 2}, nil); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchOrthogonalVectors(t *testing.T) {
	idx := New(Params{Dimension: 3})
	vectors := map[string][]float32{
		"u1": {1, 0, 0},
		"u2": {0, 1, 0},
		"u3": {0, 0, 1},
	}
	for uri, v := range vectors {
		if err := idx.AddNode(uri, v, nil); err != nil {
			t.Fatalf("AddNode(%s): %v", uri, err)
		}
	}

	results, err := idx.Search([]float32{1, 0, 0}, 10, SearchOptions{MinScore: 0.7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].URI != "u1" {
		t.Fatalf("expected only u1 above threshold, got %+v", results)
	}
	if results[0].Similarity < 0.999 {
		t.Fatalf("expected near-1.0 similarity for exact match, got %f", results[0].Similarity)
	}
}

func TestSearchIdenticalVectorsAllMatch(t *testing.T) {
	idx := New(Params{Dimension: 2})
	for _, uri := range []string{"a", "b", "c"} {
		if err := idx.AddNode(uri, []float32{1, 1}, nil); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	if err := idx.AddNode("d", []float32{-1, -1}, nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	results, err := idx.Search([]float32{1, 1}, 10, SearchOptions{MinScore: 0.7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results above threshold, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.Similarity < 0.999 {
			t.Fatalf("expected near-1.0 similarity, got %f for %s", r.Similarity, r.URI)
		}
	}
}

func TestSearchRespectsK(t *testing.T) {
	idx := New(Params{Dimension: 2})
	for _, uri := range []string{"a", "b", "c", "d"} {
		if err := idx.AddNode(uri, []float32{1, 1}, nil); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	results, err := idx.Search([]float32{1, 1}, 2, SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected k=2 results, got %d", len(results))
	}
}

func TestGetStatistics(t *testing.T) {
	idx := New(DefaultParams(4))
	stats := idx.GetStatistics()
	if stats.Dimension != 4 || stats.Capacity != 100000 || stats.EFConstruction != 200 || stats.M != 16 {
		t.Fatalf("unexpected default statistics: %+v", stats)
	}
	if err := idx.AddNode("u1", []float32{1, 0, 0, 0}, map[string]string{"kind": "Unit"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if idx.GetStatistics().Size != 1 {
		t.Fatalf("expected size 1 after one insert")
	}
}

func TestCapacityExceeded(t *testing.T) {
	idx := New(Params{Dimension: 1, Capacity: 1})
	if err := idx.AddNode("u1", []float32{1}, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := idx.AddNode("u2", []float32{1}, nil); err == nil {
		t.Fatal("expected capacity exceeded error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New(Params{Dimension: 3, Capacity: 10, EFConstruction: 5, M: 2})
	if err := idx.AddNode("u1", []float32{1, 0, 0}, map[string]string{"nodeType": "Unit"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := idx.AddNode("u2", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stats := loaded.GetStatistics()
	if stats.Size != 2 || stats.Dimension != 3 {
		t.Fatalf("unexpected loaded statistics: %+v", stats)
	}

	results, err := loaded.Search([]float32{1, 0, 0}, 1, SearchOptions{})
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	if len(results) != 1 || results[0].URI != "u1" {
		t.Fatalf("expected u1 nearest after load, got %+v", results)
	}
	if results[0].Metadata["nodeType"] != "Unit" {
		t.Fatalf("expected metadata to round-trip, got %+v", results[0].Metadata)
	}
}

func TestLoadCorruptHeader(t *testing.T) {
	buf := bytes.NewBufferString("not a valid index file")
	if _, err := Load(buf); err == nil {
		t.Fatal("expected error loading corrupt index")
	}
}
