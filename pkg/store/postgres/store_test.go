package postgres_test

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/kgweave/kgweave/pkg/graph"
	"github.com/kgweave/kgweave/pkg/store/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if KGWEAVE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("KGWEAVE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KGWEAVE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestEndpoint creates a fresh [postgres.Endpoint] with a clean schema.
func newTestEndpoint(t *testing.T) *postgres.Endpoint {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	ep, err := postgres.NewEndpoint(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	t.Cleanup(ep.Close)
	return ep
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS subject_embeddings CASCADE",
		"DROP TABLE IF EXISTS quads CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func TestInsertQuads_And_Select(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	quads := []graph.Quad{
		{Subject: "urn:unit:1", Predicate: "rdf:type", Object: "kg:Unit", Graph: "g1"},
		{Subject: "urn:unit:1", Predicate: "kg:mentions", Object: "urn:entity:acme", Graph: "g1"},
		{Subject: "urn:entity:acme", Predicate: "rdf:type", Object: "kg:Entity", Graph: "g1"},
	}
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads: %v", err)
	}

	// Re-inserting the same quads must be a no-op, not an error.
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads (re-insert): %v", err)
	}

	got, err := ep.Select(ctx, graph.Pattern{Subject: "urn:unit:1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Select returned %d quads, want 2", len(got))
	}
}

func TestSelect_EmptyPattern_ReturnsAll(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	quads := []graph.Quad{
		{Subject: "urn:a", Predicate: "p", Object: "urn:b", Graph: "g"},
		{Subject: "urn:b", Predicate: "p", Object: "urn:c", Graph: "g"},
	}
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads: %v", err)
	}

	got, err := ep.Select(ctx, graph.Pattern{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Select returned %d quads, want 2", len(got))
	}
}

func TestConstruct_MatchesSubjectOrObject(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	quads := []graph.Quad{
		{Subject: "urn:a", Predicate: "p", Object: "urn:b", Graph: "g"},
		{Subject: "urn:c", Predicate: "p", Object: "urn:a", Graph: "g"},
		{Subject: "urn:d", Predicate: "p", Object: "urn:e", Graph: "g"},
	}
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads: %v", err)
	}

	got, err := ep.Construct(ctx, []string{"urn:a"})
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Construct returned %d quads, want 2", len(got))
	}
}

func TestNeighbors_TraversesMultipleHops(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	quads := []graph.Quad{
		{Subject: "urn:a", Predicate: "links", Object: "urn:b", Graph: "g"},
		{Subject: "urn:b", Predicate: "links", Object: "urn:c", Graph: "g"},
		{Subject: "urn:c", Predicate: "links", Object: "urn:a", Graph: "g"}, // cycle back to start
	}
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads: %v", err)
	}

	got, err := ep.Neighbors(ctx, "urn:a", 2, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	sort.Strings(got)
	want := []string{"urn:b", "urn:c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Neighbors = %v, want %v", got, want)
	}
}

func TestNeighbors_FiltersByPredicate(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	quads := []graph.Quad{
		{Subject: "urn:a", Predicate: "links", Object: "urn:b", Graph: "g"},
		{Subject: "urn:a", Predicate: "excludes", Object: "urn:z", Graph: "g"},
	}
	if err := ep.InsertQuads(ctx, quads); err != nil {
		t.Fatalf("InsertQuads: %v", err)
	}

	got, err := ep.Neighbors(ctx, "urn:a", 1, []string{"links"})
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0] != "urn:b" {
		t.Fatalf("Neighbors = %v, want [urn:b]", got)
	}
}

func TestIndexEmbedding_And_VectorSearch(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	if err := ep.IndexEmbedding(ctx, "urn:a", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("IndexEmbedding urn:a: %v", err)
	}
	if err := ep.IndexEmbedding(ctx, "urn:b", []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("IndexEmbedding urn:b: %v", err)
	}

	matches, err := ep.VectorSearch(ctx, []float32{1, 0, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(matches) != 1 || matches[0].Subject != "urn:a" {
		t.Fatalf("VectorSearch = %+v, want top match urn:a", matches)
	}

	// Re-indexing urn:a with a different vector should update, not duplicate.
	if err := ep.IndexEmbedding(ctx, "urn:a", []float32{0, 0, 1, 0}); err != nil {
		t.Fatalf("IndexEmbedding (re-index): %v", err)
	}
	matches, err = ep.VectorSearch(ctx, []float32{0, 0, 1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("VectorSearch (re-index): %v", err)
	}
	if len(matches) != 2 || matches[0].Subject != "urn:a" {
		t.Fatalf("VectorSearch (re-index) = %+v, want top match urn:a", matches)
	}
}

func TestVectorSearch_ScopeRestriction(t *testing.T) {
	ep := newTestEndpoint(t)
	ctx := context.Background()

	if err := ep.IndexEmbedding(ctx, "urn:a", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("IndexEmbedding urn:a: %v", err)
	}
	if err := ep.IndexEmbedding(ctx, "urn:b", []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatalf("IndexEmbedding urn:b: %v", err)
	}

	matches, err := ep.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5, []string{"urn:b"})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(matches) != 1 || matches[0].Subject != "urn:b" {
		t.Fatalf("VectorSearch (scoped) = %+v, want only urn:b", matches)
	}
}
