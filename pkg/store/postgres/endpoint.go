package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/store"
)

// InsertQuads implements [store.Endpoint]. It persists quads, skipping any
// that already exist (insert-or-skip via ON CONFLICT DO NOTHING) — the
// endpoint never mutates or deletes a previously persisted statement.
func (e *Endpoint) InsertQuads(ctx context.Context, quads []graph.Quad) error {
	if len(quads) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO quads (subject, predicate, object, graph_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, predicate, object, graph_name) DO NOTHING`
	for _, quad := range quads {
		batch.Queue(q, quad.Subject, quad.Predicate, quad.Object, quad.Graph)
	}

	br := e.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range quads {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: insert quads: %w", err)
		}
	}
	return nil
}

// Select implements [store.Endpoint]. It returns every persisted quad
// matching pattern; an empty field in pattern matches anything in that
// position.
func (e *Endpoint) Select(ctx context.Context, pattern graph.Pattern) ([]graph.Quad, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if pattern.Subject != "" {
		conditions = append(conditions, "subject = "+next(pattern.Subject))
	}
	if pattern.Predicate != "" {
		conditions = append(conditions, "predicate = "+next(pattern.Predicate))
	}
	if pattern.Object != "" {
		conditions = append(conditions, "object = "+next(pattern.Object))
	}
	if pattern.Graph != "" {
		conditions = append(conditions, "graph_name = "+next(pattern.Graph))
	}

	q := "SELECT subject, predicate, object, graph_name FROM quads"
	if len(conditions) > 0 {
		q += "\nWHERE " + strings.Join(conditions, "\n  AND ")
	}

	rows, err := e.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select: %w", err)
	}
	return collectQuads(rows)
}

// Construct implements [store.Endpoint]. It returns every quad whose
// subject or object is one of subjects.
func (e *Endpoint) Construct(ctx context.Context, subjects []string) ([]graph.Quad, error) {
	if len(subjects) == 0 {
		return []graph.Quad{}, nil
	}

	const q = `
		SELECT subject, predicate, object, graph_name
		FROM   quads
		WHERE  subject = ANY($1::text[]) OR object = ANY($1::text[])`

	rows, err := e.pool.Query(ctx, q, subjects)
	if err != nil {
		return nil, fmt.Errorf("store: construct: %w", err)
	}
	return collectQuads(rows)
}

// Neighbors implements [store.Endpoint]. It performs a breadth-first
// traversal from subject up to depth hops using a PostgreSQL recursive CTE,
// following quads as directed subject->object edges, and returns every
// reachable object URI. Cycles are prevented by tracking visited URIs in a
// PostgreSQL text array.
func (e *Endpoint) Neighbors(ctx context.Context, subject string, depth int, predicates []string) ([]string, error) {
	args := []any{subject, depth} // $1, $2

	predFilter := ""
	if len(predicates) > 0 {
		args = append(args, predicates)
		predFilter = fmt.Sprintf("\n      AND  q.predicate = ANY($%d::text[])", len(args))
	}

	q := fmt.Sprintf(`
		WITH RECURSIVE reachable AS (
		    SELECT $1::text AS node, ARRAY[$1::text] AS visited, 0 AS hop

		    UNION ALL

		    SELECT q.object, r.visited || q.object, r.hop + 1
		    FROM   reachable r
		    JOIN   quads q ON q.subject = r.node
		    WHERE  r.hop < $2
		      AND  NOT (q.object = ANY(r.visited))%s
		)
		SELECT DISTINCT node FROM reachable WHERE node != $1
		ORDER BY node`, predFilter)

	rows, err := e.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: neighbors: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store: neighbors: scan: %w", err)
	}
	if nodes == nil {
		nodes = []string{}
	}
	return nodes, nil
}

// IndexEmbedding implements [store.Endpoint]. It upserts the embedding
// associated with subject in the embeddings sidecar.
func (e *Endpoint) IndexEmbedding(ctx context.Context, subject string, embedding []float32) error {
	const q = `
		INSERT INTO subject_embeddings (subject, embedding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subject) DO UPDATE SET
		    embedding  = EXCLUDED.embedding,
		    updated_at = now()`

	if _, err := e.pool.Exec(ctx, q, subject, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("store: index embedding: %w", err)
	}
	return nil
}

// VectorSearch implements [store.Endpoint]. It returns the topK subjects
// whose sidecar embedding is closest (cosine distance) to embedding,
// optionally restricted to scope.
func (e *Endpoint) VectorSearch(ctx context.Context, embedding []float32, topK int, scope []string) ([]store.VectorMatch, error) {
	args := []any{pgvector.NewVector(embedding)} // $1

	scopeFilter := ""
	if len(scope) > 0 {
		args = append(args, scope)
		scopeFilter = fmt.Sprintf("\nWHERE  subject = ANY($%d::text[])", len(args))
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT subject, embedding <=> $1 AS distance
		FROM   subject_embeddings%s
		ORDER  BY distance
		LIMIT  %s`, scopeFilter, limitArg)

	rows, err := e.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: vector search: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.VectorMatch, error) {
		var m store.VectorMatch
		if err := row.Scan(&m.Subject, &m.Distance); err != nil {
			return store.VectorMatch{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: vector search: scan: %w", err)
	}
	if matches == nil {
		matches = []store.VectorMatch{}
	}
	return matches, nil
}

// collectQuads scans pgx rows into a slice of graph.Quad values.
func collectQuads(rows pgx.Rows) ([]graph.Quad, error) {
	quads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Quad, error) {
		var q graph.Quad
		if err := row.Scan(&q.Subject, &q.Predicate, &q.Object, &q.Graph); err != nil {
			return graph.Quad{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	if quads == nil {
		quads = []graph.Quad{}
	}
	return quads, nil
}
