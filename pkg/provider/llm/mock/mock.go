// Package mock supplies a scriptable llm.Provider for tests.
//
// Pre-set Response or Err to control what Complete returns, then inspect
// Calls to verify the requests that were sent:
//
//	p := &mock.Provider{
//	    Response: &llm.CompletionResponse{Content: "Hello!"},
//	}
//	resp, _ := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation: the context it ran under
// and the request that was submitted.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is an llm.Provider whose answers are scripted through its fields.
// All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Response is returned by every Complete call when Err is nil.
	// May be nil (returns nil, nil).
	Response *llm.CompletionResponse

	// Responses, when non-empty, is consumed one element per Complete call
	// before falling back to Response.
	Responses []*llm.CompletionResponse

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Calls records every call to Complete.
	Calls []CompleteCall
}

// Complete records the call and returns the configured result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) > 0 {
		resp := p.Responses[0]
		p.Responses = p.Responses[1:]
		return resp, nil
	}
	return p.Response, nil
}

// CallCount reports how many Complete calls have been recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset forgets the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ llm.Provider = (*Provider)(nil)
