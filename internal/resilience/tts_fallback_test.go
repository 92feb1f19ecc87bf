package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
	ttsmock "github.com/MrWong99/auricle/pkg/provider/tts/mock"
)

func ttsFallbackPair(cloud, local *ttsmock.Provider) *TTSFallback {
	fb := NewTTSFallback(cloud, "cloud", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5},
	})
	fb.AddFallback("local", local)
	return fb
}

func TestTTSFallback_Synthesize(t *testing.T) {
	// The two backends speak at different rates so every assertion can tell
	// them apart by the clip alone.
	cloudClip := audio.Clip{Samples: make([]float32, 2205), SampleRate: 22050}
	localClip := audio.Clip{Samples: make([]float32, 1600), SampleRate: 16000}

	t.Run("healthy primary speaks", func(t *testing.T) {
		cloud := &ttsmock.Provider{Clip: cloudClip}
		local := &ttsmock.Provider{Clip: localClip}
		fb := ttsFallbackPair(cloud, local)

		clip, err := fb.Synthesize(context.Background(), "the oven is preheated")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if clip.SampleRate != 22050 {
			t.Errorf("sample rate = %d, want the primary's 22050", clip.SampleRate)
		}
		if local.CallCount() != 0 {
			t.Errorf("fallback saw %d calls, want none", local.CallCount())
		}
	})

	t.Run("failing primary hands the text to the fallback", func(t *testing.T) {
		cloud := &ttsmock.Provider{SynthesizeErr: errUnavailable}
		local := &ttsmock.Provider{Clip: localClip}
		fb := ttsFallbackPair(cloud, local)

		clip, err := fb.Synthesize(context.Background(), "the oven is preheated")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if clip.SampleRate != 16000 {
			t.Errorf("sample rate = %d, want the fallback's 16000", clip.SampleRate)
		}
		if got := local.SynthesizeCalls[0].Text; got != "the oven is preheated" {
			t.Errorf("fallback synthesized %q, want the original text", got)
		}
	})

	t.Run("every backend down", func(t *testing.T) {
		fb := ttsFallbackPair(
			&ttsmock.Provider{SynthesizeErr: errUnavailable},
			&ttsmock.Provider{SynthesizeErr: errUnavailable},
		)

		if _, err := fb.Synthesize(context.Background(), "anyone there?"); !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	})
}

func TestTTSFallback_Voices_ComeFromFirstHealthyBackend(t *testing.T) {
	cloud := &ttsmock.Provider{VoicesErr: errUnavailable}
	local := &ttsmock.Provider{VoicesResult: []tts.Voice{
		{ID: "en-amy", Name: "Amy", Language: "en-US"},
	}}
	fb := ttsFallbackPair(cloud, local)

	voices, err := fb.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "en-amy" {
		t.Fatalf("voices = %+v, want the fallback's catalogue", voices)
	}
}
