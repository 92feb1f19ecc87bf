// Package inmem provides the default in-memory history store. Exchanges
// and memory slots live in process memory and are lost on restart.
//
// When constructed with [WithEmbedder], Recall ranks exchanges by cosine
// similarity to the query; otherwise it falls back to case-insensitive
// keyword matching.
package inmem

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/auricle/pkg/history"
)

// Compile-time assertion that Store satisfies the history.Store interface.
var _ history.Store = (*Store)(nil)

// Store is a thread-safe, in-memory implementation of [history.Store].
// It is suitable for single-process use and testing.
type Store struct {
	mu        sync.RWMutex
	exchanges []history.Exchange
	vectors   [][]float32 // parallel to exchanges; nil entries carry no embedding
	slots     map[string]string
	embedder  history.Embedder
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder enables semantic recall using the given embedder.
func WithEmbedder(e history.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// New returns an initialised empty [Store].
func New(opts ...Option) *Store {
	s := &Store{
		slots: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append implements [history.Store.Append]. With an embedder configured the
// exchange text is embedded for later semantic recall; an embedding failure
// is not fatal and the exchange is kept without a vector.
func (s *Store) Append(ctx context.Context, ex history.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	// Embed outside the lock; the provider may do network I/O.
	var vec []float32
	if s.embedder != nil {
		if v, err := s.embedder.Embed(ctx, ex.PromptText()); err == nil {
			vec = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = append(s.exchanges, ex)
	s.vectors = append(s.vectors, vec)
	return nil
}

// Recent implements [history.Store.Recent].
func (s *Store) Recent(ctx context.Context, n int) ([]history.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && n < len(s.exchanges) {
		start = len(s.exchanges) - n
	}
	out := make([]history.Exchange, len(s.exchanges)-start)
	copy(out, s.exchanges[start:])
	return out, nil
}

// Recall implements [history.Store.Recall].
func (s *Store) Recall(ctx context.Context, query string, k int) ([]history.Exchange, error) {
	if query == "" || k <= 0 {
		return []history.Exchange{}, nil
	}

	if s.embedder != nil {
		qv, err := s.embedder.Embed(ctx, query)
		if err == nil && len(qv) > 0 {
			return s.recallSemantic(qv, k), nil
		}
		// Embedder unavailable: fall through to keyword matching.
	}
	return s.recallKeyword(query, k), nil
}

// SetSlot implements [history.Store.SetSlot].
func (s *Store) SetSlot(ctx context.Context, slot, value string) error {
	if !history.ValidSlot(slot) {
		return fmt.Errorf("%w: %q", history.ErrUnknownSlot, slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if value == "" {
		delete(s.slots, slot)
		return nil
	}
	s.slots[slot] = value
	return nil
}

// Slots implements [history.Store.Slots].
func (s *Store) Slots(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.slots))
	for name, value := range s.slots {
		out[name] = value
	}
	return out, nil
}

// ClearHistory implements [history.Store.ClearHistory]. Memory slots are
// left untouched.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = nil
	s.vectors = nil
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Recall strategies
// ─────────────────────────────────────────────────────────────────────────────

// recallSemantic ranks embedded exchanges by cosine similarity to the query
// vector. Exchanges stored without a vector are skipped.
func (s *Store) recallSemantic(qv []float32, k int) []history.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		ex  history.Exchange
		sim float64
	}
	ranked := make([]scored, 0, len(s.exchanges))
	for i, ex := range s.exchanges {
		if s.vectors[i] == nil {
			continue
		}
		ranked = append(ranked, scored{ex: ex, sim: cosineSimilarity(qv, s.vectors[i])})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.sim, a.sim) // descending
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]history.Exchange, k)
	for i := range out {
		out[i] = ranked[i].ex
	}
	return out
}

// recallKeyword returns exchanges whose user or assistant text contains the
// query, newest first.
func (s *Store) recallKeyword(query string, k int) []history.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]history.Exchange, 0, k)
	for i := len(s.exchanges) - 1; i >= 0 && len(out) < k; i-- {
		ex := s.exchanges[i]
		if strings.Contains(strings.ToLower(ex.User), q) ||
			strings.Contains(strings.ToLower(ex.Assistant), q) {
			out = append(out, ex)
		}
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
