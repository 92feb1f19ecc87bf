// Package postgres provides a PostgreSQL-backed implementation of
// [history.Store].
//
// Exchanges are stored with an optional pgvector embedding so Recall can
// rank by cosine distance; without an embedder Recall falls back to ILIKE
// keyword matching. Memory slots live in their own table and survive
// ClearHistory.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536, postgres.WithEmbedder(emb))
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, history.Exchange{User: "hello", Assistant: "hi"})
//	recent, _ := store.Recent(ctx, 10)
//	related, _ := store.Recall(ctx, "what did I say about my dog?", 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlVectorExtension must run before pgvector types can be registered on
// pool connections, so [NewStore] executes it over a plain connection
// ahead of the pool setup.
const ddlVectorExtension = `CREATE EXTENSION IF NOT EXISTS vector;`

const ddlMemorySlots = `
CREATE TABLE IF NOT EXISTS memory_slots (
    name        TEXT         PRIMARY KEY,
    value       TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlExchanges returns the exchange log DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlExchanges(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS exchanges (
    id              BIGSERIAL    PRIMARY KEY,
    user_text       TEXT         NOT NULL,
    assistant_text  TEXT         NOT NULL,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding       vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_exchanges_created_at
    ON exchanges (created_at);

CREATE INDEX IF NOT EXISTS idx_exchanges_embedding
    ON exchanges USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and indexes exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g. 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlExchanges(embeddingDimensions),
		ddlMemorySlots,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
