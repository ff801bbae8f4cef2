// Package graph provides the in-memory quad store (GraphDataset) that every
// decomposition, enrichment, and search operation reads from and writes
// into. The engine never owns persistent storage — it emits a Dataset for
// an external graph-query-endpoint collaborator to persist (see
// pkg/store).
package graph

// Quad is a single (subject, predicate, object, graph) statement. Graph is
// empty for the default graph.
type Quad struct {
	Subject   string
	Predicate string
	Object    string
	Graph     string
}

// Pattern matches a subset of quad positions; an empty field matches
// anything in that position.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
	Graph     string
}

func (p Pattern) matches(q Quad) bool {
	if p.Subject != "" && p.Subject != q.Subject {
		return false
	}
	if p.Predicate != "" && p.Predicate != q.Predicate {
		return false
	}
	if p.Object != "" && p.Object != q.Object {
		return false
	}
	if p.Graph != "" && p.Graph != q.Graph {
		return false
	}
	return true
}
