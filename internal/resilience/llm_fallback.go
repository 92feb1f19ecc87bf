package resilience

import (
	"context"

	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// LLMFallback fails completion over to alternate [llm.Provider]
// backends, each behind its own circuit breaker. When the primary fails or
// its breaker is open, the next healthy backend gets the request.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback wraps primary as the preferred model backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a model backend tried after the ones already
// registered.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks receive the same
// request.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
