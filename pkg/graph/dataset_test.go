package graph

import (
	"sort"
	"testing"
)

func TestDataset_AddQuadDeduplicates(t *testing.T) {
	d := NewDataset()
	d.AddQuad("s1", "p1", "o1", "")
	d.AddQuad("s1", "p1", "o1", "")
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after duplicate insert", d.Len())
	}
}

func TestDataset_MatchBySubject(t *testing.T) {
	d := NewDataset()
	d.AddQuad("s1", "p1", "o1", "")
	d.AddQuad("s1", "p2", "o2", "")
	d.AddQuad("s2", "p1", "o3", "")

	got := d.Match(Pattern{Subject: "s1"})
	if len(got) != 2 {
		t.Fatalf("Match(subject=s1) returned %d quads, want 2", len(got))
	}
}

func TestDataset_MatchByPredicateAndObject(t *testing.T) {
	d := NewDataset()
	d.AddQuad("s1", "rdf:type", "kg:Entity", "")
	d.AddQuad("s2", "rdf:type", "kg:Unit", "")
	d.AddQuad("s3", "rdf:type", "kg:Entity", "")

	got := d.Match(Pattern{Predicate: "rdf:type", Object: "kg:Entity"})
	if len(got) != 2 {
		t.Fatalf("Match(type=Entity) returned %d quads, want 2", len(got))
	}
}

func TestDataset_Subjects(t *testing.T) {
	d := NewDataset()
	d.AddQuad("s1", "rdf:type", "kg:Entity", "")
	d.AddQuad("s2", "rdf:type", "kg:Unit", "")
	d.AddQuad("s3", "rdf:type", "kg:Entity", "")

	got := d.Subjects("kg:Entity")
	if len(got) != 2 || got[0] != "s1" || got[1] != "s3" {
		t.Errorf("Subjects(kg:Entity) = %v, want [s1 s3]", got)
	}
}

func TestDataset_MergeIsIdempotent(t *testing.T) {
	d1 := NewDataset()
	d1.AddQuad("s1", "p1", "o1", "")

	d2 := NewDataset()
	d2.AddQuad("s1", "p1", "o1", "")
	d2.AddQuad("s2", "p2", "o2", "")

	d1.Merge(d2)
	if d1.Len() != 2 {
		t.Fatalf("Len() after merge = %d, want 2", d1.Len())
	}
	d1.Merge(d2)
	if d1.Len() != 2 {
		t.Errorf("Len() after repeated merge = %d, want 2 (idempotent)", d1.Len())
	}
}

func TestExport_NTriplesRoundTripsMultiset(t *testing.T) {
	d := NewDataset()
	d.AddQuad("https://kg.example.org/s1", "https://kg.example.org/p1", "hello", "")
	d.AddQuad("https://kg.example.org/s1", "https://kg.example.org/p2", "https://kg.example.org/o2", "")
	d.AddQuad("https://kg.example.org/s2", "https://kg.example.org/p1", `a "quoted" value`, "")

	out := exportNTriples(d.All())
	if out == "" {
		t.Fatal("exportNTriples returned empty string")
	}

	parsed, err := ParseNTriples(out)
	if err != nil {
		t.Fatalf("ParseNTriples: %v", err)
	}

	want := d.All()
	if len(parsed) != len(want) {
		t.Fatalf("round-tripped %d quads, want %d", len(parsed), len(want))
	}
	if !sameQuadMultiset(parsed, want) {
		t.Errorf("round-tripped quads do not match original multiset\ngot:  %+v\nwant: %+v", parsed, want)
	}
}

// sameQuadMultiset reports whether a and b contain the same quads with the
// same multiplicities, ignoring order. Graph is excluded from the
// comparison since exportNTriples drops it (N-Triples has no named-graph
// term in this encoding).
func sameQuadMultiset(a, b []Quad) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(q Quad) string { return q.Subject + "\x00" + q.Predicate + "\x00" + q.Object }
	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i, q := range a {
		as[i] = key(q)
	}
	for i, q := range b {
		bs[i] = key(q)
	}
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
