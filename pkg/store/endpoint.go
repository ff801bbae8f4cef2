// Package store defines the graph-query-endpoint contract that collaborates
// with the in-memory GraphDataset (pkg/graph): a monotone-insert-only,
// SPARQL-like surface for persisting and re-querying quads and their
// associated embeddings.
//
// The engine never requires a persistent endpoint to operate — every
// operation runs against an in-memory Dataset — but a configured Endpoint
// lets quads and vectors survive process restarts and be queried without
// re-running decomposition.
package store

import (
	"context"

	"github.com/kgweave/kgweave/pkg/graph"
)

// VectorMatch pairs a subject URI with its distance from a query embedding.
// Lower Distance values indicate higher similarity.
type VectorMatch struct {
	Subject  string
	Distance float64
}

// Endpoint is a graph-query endpoint accepting parameterised SELECT,
// CONSTRUCT, and INSERT-DATA-shaped calls. It is monotone-insert only: once
// a quad is persisted, the endpoint offers no UPDATE or DELETE operation —
// callers model retraction as an explicit new quad (e.g. a supersedes edge)
// rather than mutation.
//
// Implementations must be safe for concurrent use.
type Endpoint interface {
	// InsertQuads persists quads, ignoring any that already exist
	// (insert-or-skip, not upsert).
	InsertQuads(ctx context.Context, quads []graph.Quad) error

	// Select returns every persisted quad matching pattern.
	Select(ctx context.Context, pattern graph.Pattern) ([]graph.Quad, error)

	// Construct returns the subgraph of quads whose subject or object is one
	// of subjects — every persisted statement directly touching those nodes.
	Construct(ctx context.Context, subjects []string) ([]graph.Quad, error)

	// Neighbors performs a breadth-first traversal from subject up to depth
	// hops, following quads as directed subject->object edges, and returns
	// every reachable object URI (subject itself excluded). An empty
	// predicates list follows every predicate.
	Neighbors(ctx context.Context, subject string, depth int, predicates []string) ([]string, error)

	// IndexEmbedding upserts the embedding associated with subject in the
	// endpoint's own embeddings sidecar, enabling VectorSearch. This sidecar
	// is independent of pkg/vector's file-backed index.
	IndexEmbedding(ctx context.Context, subject string, embedding []float32) error

	// VectorSearch returns the topK subjects whose sidecar embedding is
	// closest (cosine distance) to embedding, optionally restricted to
	// scope. An empty scope searches every indexed subject.
	VectorSearch(ctx context.Context, embedding []float32, topK int, scope []string) ([]VectorMatch, error)

	// Close releases any resources held by the endpoint.
	Close()
}
