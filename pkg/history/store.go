// Package history defines conversation storage for the assistant: the
// exchanges spoken between user and assistant, and a small set of named
// memory slots holding facts that survive a history reset.
//
// Two implementations exist: an in-memory store (the default, see the
// inmem subpackage) and a PostgreSQL-backed store with pgvector
// similarity search (see the postgres subpackage).
package history

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Exchange is a single conversational turn: what the user said and what
// the assistant answered.
type Exchange struct {
	// User is the user's utterance (or typed message on the HTTP API).
	User string

	// Assistant is the assistant's reply.
	Assistant string

	// CreatedAt is when the exchange was recorded.
	CreatedAt time.Time
}

// PromptText renders the exchange in the transcript form used when
// building prompts and computing embeddings.
func (ex Exchange) PromptText() string {
	return "User: " + ex.User + "\nAssistant: " + ex.Assistant
}

// ErrUnknownSlot is returned by SetSlot for a slot name outside SlotNames.
var ErrUnknownSlot = errors.New("unknown memory slot")

// SlotNames are the memory slot keys accepted by SetSlot. Slots hold short
// user-provided facts ("my dog is called Pixel") that are folded into the
// system prompt of every request and survive ClearHistory.
var SlotNames = []string{"memory1", "memory2", "memory3"}

// ValidSlot reports whether name is an accepted memory slot key.
func ValidSlot(name string) bool {
	return slices.Contains(SlotNames, name)
}

// Embedder computes vector embeddings for semantic recall. Any provider
// from pkg/provider/embeddings satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Store persists exchanges and memory slots.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records one exchange. A zero CreatedAt is replaced with the
	// current time.
	Append(ctx context.Context, ex Exchange) error

	// Recent returns the last n exchanges in chronological order. If n <= 0,
	// all stored exchanges are returned.
	Recent(ctx context.Context, n int) ([]Exchange, error)

	// Recall returns up to k exchanges relevant to query, most relevant
	// first. Stores with an embedder rank by vector similarity; without one
	// they fall back to case-insensitive keyword matching. An empty query or
	// k <= 0 yields no results.
	Recall(ctx context.Context, query string, k int) ([]Exchange, error)

	// SetSlot stores value under the named memory slot, overwriting any
	// previous value. An empty value clears the slot. Unknown slot names
	// return an error wrapping ErrUnknownSlot.
	SetSlot(ctx context.Context, slot, value string) error

	// Slots returns the slots that currently hold a value.
	Slots(ctx context.Context) (map[string]string, error)

	// ClearHistory removes all stored exchanges. Memory slots are kept.
	ClearHistory(ctx context.Context) error
}
