package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/auricle/pkg/provider/llm"
	llmmock "github.com/MrWong99/auricle/pkg/provider/llm/mock"
)

func llmFallbackPair(cloud, local *llmmock.Provider) *LLMFallback {
	fb := NewLLMFallback(cloud, "cloud", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5},
	})
	fb.AddFallback("local", local)
	return fb
}

func TestLLMFallback_Complete(t *testing.T) {
	ask := llm.CompletionRequest{
		SystemPrompt: "You are a concise kitchen assistant.",
		Messages:     []llm.Message{{Role: "user", Content: "how long do I boil an egg?"}},
	}

	t.Run("healthy primary answers", func(t *testing.T) {
		cloud := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "About seven minutes."}}
		local := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "never reached"}}
		fb := llmFallbackPair(cloud, local)

		resp, err := fb.Complete(context.Background(), ask)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "About seven minutes." {
			t.Errorf("content = %q, want the primary's answer", resp.Content)
		}
		if local.CallCount() != 0 {
			t.Errorf("fallback saw %d calls, want none", local.CallCount())
		}
	})

	t.Run("failing primary hands the request over intact", func(t *testing.T) {
		cloud := &llmmock.Provider{Err: errUnavailable}
		local := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Seven minutes for soft-boiled."}}
		fb := llmFallbackPair(cloud, local)

		resp, err := fb.Complete(context.Background(), ask)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "Seven minutes for soft-boiled." {
			t.Errorf("content = %q, want the fallback's answer", resp.Content)
		}

		relayed := local.Calls[0].Req
		if relayed.SystemPrompt != ask.SystemPrompt {
			t.Errorf("fallback system prompt = %q, want %q", relayed.SystemPrompt, ask.SystemPrompt)
		}
		if len(relayed.Messages) != 1 || relayed.Messages[0].Content != ask.Messages[0].Content {
			t.Errorf("fallback messages = %+v, want the original conversation", relayed.Messages)
		}
	})

	t.Run("every backend down", func(t *testing.T) {
		fb := llmFallbackPair(
			&llmmock.Provider{Err: errUnavailable},
			&llmmock.Provider{Err: errUnavailable},
		)

		if _, err := fb.Complete(context.Background(), ask); !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	})
}
