package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/MrWong99/auricle/pkg/history"
)

// Append implements [history.Store.Append]. With an embedder configured the
// exchange text is embedded and stored alongside the row; an embedding
// failure is not fatal and the row is inserted with a NULL embedding.
func (s *Store) Append(ctx context.Context, ex history.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	var embedding any
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, ex.PromptText()); err == nil && len(vec) > 0 {
			embedding = pgvector.NewVector(vec)
		}
	}

	const q = `
		INSERT INTO exchanges (user_text, assistant_text, created_at, embedding)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, ex.User, ex.Assistant, ex.CreatedAt, embedding); err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// Recent implements [history.Store.Recent]. It returns the last n exchanges
// ordered chronologically (oldest first); n <= 0 returns all of them.
func (s *Store) Recent(ctx context.Context, n int) ([]history.Exchange, error) {
	q := "SELECT user_text, assistant_text, created_at\n" +
		"FROM   exchanges\n" +
		"ORDER  BY created_at DESC, id DESC"

	args := []any{}
	if n > 0 {
		args = append(args, n)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	exchanges, err := collectExchanges(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(exchanges) // newest-first query result back to chronological
	return exchanges, nil
}

// Recall implements [history.Store.Recall]. With an embedder it ranks rows
// by cosine distance between the query embedding and the stored vectors;
// rows without an embedding are skipped. Without an embedder (or when the
// query embedding fails) it matches user and assistant text with ILIKE,
// newest first.
func (s *Store) Recall(ctx context.Context, query string, k int) ([]history.Exchange, error) {
	if query == "" || k <= 0 {
		return []history.Exchange{}, nil
	}

	if s.embedder != nil {
		if qv, err := s.embedder.Embed(ctx, query); err == nil && len(qv) > 0 {
			return s.recallSemantic(ctx, qv, k)
		}
		// Embedder unavailable: fall through to keyword matching.
	}
	return s.recallKeyword(ctx, query, k)
}

// ClearHistory implements [history.Store.ClearHistory]. The memory_slots
// table is left untouched.
func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM exchanges`); err != nil {
		return fmt.Errorf("history store: clear: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Recall strategies
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) recallSemantic(ctx context.Context, qv []float32, k int) ([]history.Exchange, error) {
	const q = `
		SELECT user_text, assistant_text, created_at
		FROM   exchanges
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(qv), k)
	if err != nil {
		return nil, fmt.Errorf("history store: semantic recall: %w", err)
	}
	return collectExchanges(rows)
}

func (s *Store) recallKeyword(ctx context.Context, query string, k int) ([]history.Exchange, error) {
	const q = `
		SELECT user_text, assistant_text, created_at
		FROM   exchanges
		WHERE  user_text ILIKE $1 OR assistant_text ILIKE $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, likePattern(query), k)
	if err != nil {
		return nil, fmt.Errorf("history store: keyword recall: %w", err)
	}
	return collectExchanges(rows)
}

// likePattern wraps query in wildcards for a substring ILIKE match,
// escaping the LIKE metacharacters %, _ and backslash first.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}

// collectExchanges scans pgx rows into a slice of Exchange values.
func collectExchanges(rows pgx.Rows) ([]history.Exchange, error) {
	exchanges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Exchange, error) {
		var ex history.Exchange
		if err := row.Scan(&ex.User, &ex.Assistant, &ex.CreatedAt); err != nil {
			return history.Exchange{}, err
		}
		return ex, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if exchanges == nil {
		exchanges = []history.Exchange{}
	}
	return exchanges, nil
}
