// Package postgres provides a PostgreSQL-backed implementation of
// [store.Endpoint]: a quads table for the graph-query surface and a
// pgvector-backed embeddings sidecar for VectorSearch. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	ep, err := postgres.NewEndpoint(ctx, dsn, 1536)
//	if err != nil { … }
//	defer ep.Close()
//
//	_ = ep.InsertQuads(ctx, dataset.All())
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/kgweave/kgweave/pkg/store"
)

// Compile-time interface assertion.
var _ store.Endpoint = (*Endpoint)(nil)

// Endpoint is the PostgreSQL-backed [store.Endpoint]. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Endpoint struct {
	pool *pgxpool.Pool
}

// NewEndpoint establishes a connection pool to the PostgreSQL database at
// dsn, registers pgvector types on every connection, and runs [Migrate] to
// ensure the required tables and extensions exist.
//
// dimension must match the output dimension of the embedding model in use
// (e.g. 1536 for OpenAI text-embedding-3-small). Changing it after the first
// migration requires a manual schema change.
func NewEndpoint(ctx context.Context, dsn string, dimension int) (*Endpoint, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres endpoint: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres endpoint: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres endpoint: ping: %w", err)
	}

	if err := Migrate(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres endpoint: migrate: %w", err)
	}

	return &Endpoint{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (e *Endpoint) Close() {
	e.pool.Close()
}
