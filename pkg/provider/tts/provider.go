// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Piper
// instance or the ElevenLabs API) and presents a uniform request/response
// interface. The assistant speaks one short reply at a time, so synthesis is
// a single call that returns the complete clip; there is no streaming
// pipeline between the language model and the speaker.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/auricle/pkg/audio"
)

// Voice describes one entry in a provider's voice catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier, passed back verbatim when
	// selecting a voice.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP 47 language tag of the voice, when the provider
	// reports one (e.g., "en-US").
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent,
	// preview URL, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns the complete clip.
	// The clip's sample rate is whatever the backend produced; callers that
	// need a specific rate resample afterwards.
	//
	// Returns an error if synthesis fails or ctx is cancelled. An empty text
	// input returns an empty clip and no error.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)

	// Voices returns the provider's current voice catalogue. The list may
	// change between calls if the underlying service adds or removes voices.
	Voices(ctx context.Context) ([]Voice, error)
}
