// Package mock supplies a scriptable embeddings.Provider for tests.
//
// Pre-set Vector (or queue several via Vectors) to control what Embed hands
// back, and DimensionsValue to fix the advertised width:
//
//	p := &mock.Provider{
//	    Vector:          []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	}
//	vec, _ := p.Embed(ctx, "hello world")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/embeddings"
)

// EmbedCall is one recorded Embed invocation: the context it ran under and
// the text that was submitted.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// Provider is an embeddings.Provider whose answers are scripted through its
// fields. All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Vector is returned by every Embed call when Err is nil.
	// If nil, a zero-length slice is returned.
	Vector []float32

	// Vectors, when non-empty, is consumed one element per Embed call
	// before falling back to Vector.
	Vectors [][]float32

	// Err, if non-nil, is returned as the error from Embed.
	Err error

	// DimensionsValue is what Dimensions advertises.
	DimensionsValue int

	// Calls records every call to Embed.
	Calls []EmbedCall
}

// Embed records the call and returns the configured result.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, EmbedCall{Ctx: ctx, Text: text})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Vectors) > 0 {
		vec := p.Vectors[0]
		p.Vectors = p.Vectors[1:]
		return vec, nil
	}
	return p.Vector, nil
}

// Dimensions reports the configured vector width.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// CallCount reports how many Embed calls have been recorded.
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

var _ embeddings.Provider = (*Provider)(nil)
