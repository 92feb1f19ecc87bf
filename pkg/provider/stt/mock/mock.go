// Package mock supplies a scriptable stt.Provider for tests.
//
// Pre-set Text or Err to control what Transcribe returns, then inspect
// Calls to verify which clips were delivered:
//
//	p := &mock.Provider{Text: "turn on the lights"}
//	got, _ := p.Transcribe(ctx, clip)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// TranscribeCall is one recorded Transcribe invocation: the context it ran
// under and the clip that was submitted.
type TranscribeCall struct {
	Ctx  context.Context
	Clip audio.Clip
}

// Provider is an stt.Provider whose answers are scripted through its fields.
// All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call when Err is nil.
	Text string

	// Texts, when non-empty, is consumed one element per Transcribe call
	// before falling back to Text.
	Texts []string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Clip: clip})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		text := p.Texts[0]
		p.Texts = p.Texts[1:]
		return text, nil
	}
	return p.Text, nil
}

// CallCount reports how many Transcribe calls have been recorded.
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

var _ stt.Provider = (*Provider)(nil)
