package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlQuads = `
CREATE TABLE IF NOT EXISTS quads (
    subject    TEXT NOT NULL,
    predicate  TEXT NOT NULL,
    object     TEXT NOT NULL,
    graph_name TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (subject, predicate, object, graph_name)
);

CREATE INDEX IF NOT EXISTS idx_quads_subject   ON quads (subject);
CREATE INDEX IF NOT EXISTS idx_quads_predicate ON quads (predicate);
CREATE INDEX IF NOT EXISTS idx_quads_object    ON quads (object);
CREATE INDEX IF NOT EXISTS idx_quads_graph     ON quads (graph_name);
`

// ddlEmbeddings returns the embeddings-sidecar DDL with the vector dimension
// substituted. The dimension is baked into the column type at migration time.
func ddlEmbeddings(dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS subject_embeddings (
    subject    TEXT        PRIMARY KEY,
    embedding  vector(%d)  NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subject_embeddings_hnsw
    ON subject_embeddings USING hnsw (embedding vector_cosine_ops);
`, dimension)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// dimension must match the vector model configured for the deployment (e.g.
// 1536 for OpenAI text-embedding-3-small). Changing it after the first
// migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	for _, stmt := range []string{ddlQuads, ddlEmbeddings(dimension)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
