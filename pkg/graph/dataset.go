package graph

import "sync"

// Dataset is an in-memory, append-mostly quad store supporting pattern
// matching by any subset of (subject, predicate, object, graph). Writes are
// serialised per Dataset instance (single-writer discipline); reads may run
// concurrently with each other.
type Dataset struct {
	mu sync.RWMutex

	quads []Quad
	// bySubject indexes quad positions by subject for O(1) average lookups
	// of the common "all triples about this node" query.
	bySubject map[string][]int
}

// NewDataset constructs an empty Dataset.
func NewDataset() *Dataset {
	return &Dataset{bySubject: make(map[string][]int)}
}

// AddQuad appends a quad unless an identical quad is already present.
func (d *Dataset) AddQuad(subject, predicate, object, g string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := Quad{Subject: subject, Predicate: predicate, Object: object, Graph: g}
	for _, idx := range d.bySubject[subject] {
		if d.quads[idx] == q {
			return
		}
	}
	d.quads = append(d.quads, q)
	d.bySubject[subject] = append(d.bySubject[subject], len(d.quads)-1)
}

// Match returns every quad satisfying the given pattern.
func (d *Dataset) Match(p Pattern) []Quad {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if p.Subject != "" {
		idxs := d.bySubject[p.Subject]
		out := make([]Quad, 0, len(idxs))
		for _, i := range idxs {
			if p.matches(d.quads[i]) {
				out = append(out, d.quads[i])
			}
		}
		return out
	}

	var out []Quad
	for _, q := range d.quads {
		if p.matches(q) {
			out = append(out, q)
		}
	}
	return out
}

// Subjects returns the distinct subjects carrying the given rdf:type object
// (e.g. "kg:Entity"), in first-seen order.
func (d *Dataset) Subjects(typeObject string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, q := range d.quads {
		if q.Predicate != "rdf:type" || q.Object != typeObject {
			continue
		}
		if _, ok := seen[q.Subject]; ok {
			continue
		}
		seen[q.Subject] = struct{}{}
		out = append(out, q.Subject)
	}
	return out
}

// Len returns the number of quads currently held.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.quads)
}

// All returns a copy of every quad in insertion order.
func (d *Dataset) All() []Quad {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Quad, len(d.quads))
	copy(out, d.quads)
	return out
}

// Merge appends every quad from other that is not already present. Used at
// the phase barrier between concurrently-produced local triple batches
// (spec §5: "parallel embedding tasks produce local triple batches that are
// merged at the barrier between phases").
func (d *Dataset) Merge(other *Dataset) {
	for _, q := range other.All() {
		d.AddQuad(q.Subject, q.Predicate, q.Object, q.Graph)
	}
}

// Exporter adapts an *Element's Export method to Dataset.AddQuad.
func (d *Dataset) Exporter() func(subject, predicate, object, g string) {
	return d.AddQuad
}
