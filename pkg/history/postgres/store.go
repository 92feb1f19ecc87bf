package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/auricle/pkg/history"
)

// Compile-time assertion that Store satisfies the history.Store interface.
var _ history.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [history.Store]. All operations share a
// single [pgxpool.Pool] and are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder history.Embedder
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder enables vector recall using the given embedder. Its
// dimensionality must match the embeddingDimensions passed to [NewStore].
func WithEmbedder(e history.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and indexes exist.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int, opts ...Option) (*Store, error) {
	// The vector extension has to exist before pgvector types can be
	// registered in AfterConnect, so it is installed over a plain
	// connection ahead of the pool.
	if err := ensureVectorExtension(ctx, dsn); err != nil {
		return nil, fmt.Errorf("history store: create vector extension: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ensureVectorExtension installs the pgvector extension using a short-lived
// connection without the pgvector type registration hook.
func ensureVectorExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, ddlVectorExtension)
	return err
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
