// Package chat produces assistant replies. The Service assembles a prompt
// from the persona, the stored memory slots, and recent conversation
// history, calls the language model with bounded retries, and records the
// finished exchange. It is shared by the voice loop and the HTTP API so
// both surfaces answer with the same context.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/auricle/internal/resilience"
	"github.com/MrWong99/auricle/pkg/history"
	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// Defaults applied by New.
const (
	defaultPersona      = "Sable"
	defaultHistoryLimit = 10
	defaultAttempts     = 3
	defaultRetryDelay   = time.Second
)

// Service answers user input through a language model provider, with memory
// slots and recent exchanges folded into every request.
//
// Safe for concurrent use; conversational state lives in the history store.
type Service struct {
	provider     llm.Provider
	store        history.Store
	historyLimit int
	attempts     int
	retryDelay   time.Duration

	mu      sync.RWMutex
	persona string
}

// Option configures a [Service].
type Option func(*Service)

// WithPersona sets the assistant name used in the system prompt. Blank
// names keep the default.
func WithPersona(name string) Option {
	return func(s *Service) {
		if n := strings.TrimSpace(name); n != "" {
			s.persona = n
		}
	}
}

// WithHistoryLimit caps how many recent exchanges are folded into the
// prompt. Values below 1 keep the default.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithRetry overrides how often and how patiently the language model call
// is retried on failure.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// New creates a Service that asks provider for replies and persists
// exchanges in store.
func New(provider llm.Provider, store history.Store, opts ...Option) *Service {
	s := &Service{
		provider:     provider,
		store:        store,
		persona:      defaultPersona,
		historyLimit: defaultHistoryLimit,
		attempts:     defaultAttempts,
		retryDelay:   defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Persona returns the assistant name folded into every system prompt.
func (s *Service) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// SetPersona renames the assistant at runtime, typically on a config
// reload. Blank names keep the current one. In-flight requests finish with
// the name they started with.
func (s *Service) SetPersona(name string) {
	n := strings.TrimSpace(name)
	if n == "" {
		return
	}
	s.mu.Lock()
	s.persona = n
	s.mu.Unlock()
}

// Ask produces a reply to input and records the exchange.
//
// The language model is retried on failure; when every attempt fails the
// error is returned and nothing is recorded. A failure to record the
// finished exchange is logged but does not fail the call, since the caller
// already has the reply at that point.
func (s *Service) Ask(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("chat: empty input")
	}

	req := llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: input}},
		SystemPrompt: s.systemPrompt(ctx),
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	err := resilience.Retry(ctx, s.attempts, s.retryDelay, func() error {
		r, err := s.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat: complete: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	slog.Debug("chat: completion",
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if err := s.store.Append(ctx, history.Exchange{User: input, Assistant: reply}); err != nil {
		slog.Warn("chat: record exchange", "error", err)
	}
	return reply, nil
}

// systemPrompt assembles the persona line plus memory and conversation
// sections. Store failures degrade to a shorter prompt instead of failing
// the request; empty sections are omitted rather than rendered as bare
// headers.
func (s *Service) systemPrompt(ctx context.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a helpful voice assistant named %s.", s.Persona())

	slots, err := s.store.Slots(ctx)
	if err != nil {
		slog.Warn("chat: load memory slots", "error", err)
	} else if len(slots) > 0 {
		sb.WriteString("\n\n## Memories\n")
		// SlotNames order keeps the rendering stable across calls.
		var lines []string
		for _, name := range history.SlotNames {
			if v, ok := slots[name]; ok {
				lines = append(lines, "- "+v)
			}
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}

	recent, err := s.store.Recent(ctx, s.historyLimit)
	if err != nil {
		slog.Warn("chat: load history", "error", err)
	} else if len(recent) > 0 {
		sb.WriteString("\n\n## Recent Conversation\n")
		lines := make([]string, len(recent))
		for i, ex := range recent {
			lines[i] = ex.PromptText()
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}

	return sb.String()
}
