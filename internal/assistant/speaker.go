package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// VoiceSpeaker synthesises text through a TTS provider and plays the
// resulting clip on an output device.
type VoiceSpeaker struct {
	provider tts.Provider
	output   Output
}

var _ Speaker = (*VoiceSpeaker)(nil)

// NewVoiceSpeaker creates a speaker voicing text via provider on output.
func NewVoiceSpeaker(provider tts.Provider, output Output) *VoiceSpeaker {
	return &VoiceSpeaker{provider: provider, output: output}
}

// Speak synthesises text and plays it to completion, reporting whether the
// text was actually voiced. Empty text and synthesis or playback failures
// report false; failures are logged rather than returned because callers
// treat speech as best effort.
func (s *VoiceSpeaker) Speak(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	clip, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		slog.Error("assistant: synthesize speech", "error", err)
		return false
	}
	if len(clip.Samples) == 0 {
		slog.Warn("assistant: synthesis produced no audio", "text", text)
		return false
	}

	return s.output.Play(clip, true)
}

// Stop halts any speech in progress.
func (s *VoiceSpeaker) Stop() {
	s.output.Stop()
}
