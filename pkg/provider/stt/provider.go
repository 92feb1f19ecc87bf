// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (e.g., a local whisper.cpp
// model or the Deepgram API) and converts a recorded command clip into text.
// Continuous wake-word recognition is a separate concern; see
// internal/wakeword and the whisper subpackage's Recognizer.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/auricle/pkg/audio"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts clip into text. An empty string with a nil error
	// means the backend recognised no speech in the clip; callers treat that
	// as "nothing understood" rather than a failure.
	//
	// Returns an error if the backend cannot be reached, the model rejects
	// the audio, or ctx is cancelled before the result arrives.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
