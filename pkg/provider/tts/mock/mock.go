// Package mock supplies a scriptable tts.Provider for tests.
//
// Pre-set Clip (or queue several via Clips) to control what Synthesize hands
// back, then inspect SynthesizeCalls to verify the text that was spoken:
//
//	p := &mock.Provider{
//	    Clip: audio.Clip{Samples: make([]float32, 1600), SampleRate: 16000},
//	}
//	clip, _ := p.Synthesize(ctx, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// SynthesizeCall is one recorded Synthesize invocation: the context it ran
// under and the text that was submitted.
type SynthesizeCall struct {
	Ctx  context.Context
	Text string
}

// VoicesCall is one recorded Voices invocation.
type VoicesCall struct {
	Ctx context.Context
}

// Provider is a tts.Provider whose answers are scripted through its fields.
// All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Clip is returned by Synthesize when Clips is exhausted or empty.
	Clip audio.Clip

	// Clips, when non-empty, is consumed one entry per Synthesize call before
	// falling back to Clip.
	Clips []audio.Clip

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// VoicesResult is returned by Voices.
	VoicesResult []tts.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// VoicesCalls records every call to Voices in order.
	VoicesCalls []VoicesCall
}

// Synthesize records the call and returns the configured clip and error.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	if p.SynthesizeErr != nil {
		return audio.Clip{}, p.SynthesizeErr
	}
	if len(p.Clips) > 0 {
		clip := p.Clips[0]
		p.Clips = p.Clips[1:]
		return clip, nil
	}
	return p.Clip, nil
}

// Voices records the call and returns VoicesResult, VoicesErr.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCalls = append(p.VoicesCalls, VoicesCall{Ctx: ctx})
	return p.VoicesResult, p.VoicesErr
}

// CallCount reports how many Synthesize calls have been recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset forgets the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.VoicesCalls = nil
}

var _ tts.Provider = (*Provider)(nil)
