package whisper

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz whose RMS is well
// above the silence threshold (defaultRMSThreshold = 300). The buffer
// contains `samples` 16-bit little-endian signed samples.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0 // RMS ≈ 7071, well above 300
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer (RMS = 0, below any
// threshold). The buffer contains `samples` 16-bit little-endian samples.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// testRecognizer builds a Recognizer with a stubbed inference function so
// the silence-gating logic can be exercised without a model.
func testRecognizer(infer func([]float32) (string, error)) *Recognizer {
	return &Recognizer{
		language:            defaultLanguage,
		sampleRate:          16000,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  500,
		maxBufferDurationMs: 10_000,
		infer:               infer,
	}
}

func TestRecognizer_SilenceAloneNeverInfers(t *testing.T) {
	inferCalls := 0
	r := testRecognizer(func([]float32) (string, error) {
		inferCalls++
		return "should not happen", nil
	})

	// 2 s of pure silence in 100 ms chunks.
	for range 20 {
		text, final, err := r.Accept(makeSilencePCM(1600))
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if final || text != "" {
			t.Fatalf("silence chunk finalized: text=%q final=%v", text, final)
		}
	}
	if inferCalls != 0 {
		t.Errorf("inference ran %d times for silence-only audio", inferCalls)
	}
}

func TestRecognizer_SpeechThenSilenceFinalizesOnce(t *testing.T) {
	inferCalls := 0
	var inferredSamples int
	r := testRecognizer(func(samples []float32) (string, error) {
		inferCalls++
		inferredSamples = len(samples)
		return "hey jarvis", nil
	})

	// 300 ms of speech.
	for range 3 {
		if _, final, err := r.Accept(makeSpeechPCM(1600)); err != nil || final {
			t.Fatalf("speech chunk: final=%v err=%v", final, err)
		}
	}

	// Silence up to the 500 ms threshold. The fifth 100 ms silence chunk
	// crosses it and must finalize.
	var got string
	var finals int
	for range 5 {
		text, final, err := r.Accept(makeSilencePCM(1600))
		if err != nil {
			t.Fatalf("silence chunk: %v", err)
		}
		if final {
			finals++
			got = text
		}
	}

	if finals != 1 {
		t.Fatalf("expected exactly one finalized utterance, got %d", finals)
	}
	if got != "hey jarvis" {
		t.Errorf("utterance: got %q, want %q", got, "hey jarvis")
	}
	if inferCalls != 1 {
		t.Errorf("inference ran %d times, want 1", inferCalls)
	}
	// 300 ms speech + 500 ms trailing silence at 16 kHz.
	if want := 12800; inferredSamples != want {
		t.Errorf("inferred samples: got %d, want %d", inferredSamples, want)
	}
}

func TestRecognizer_FullBufferForcesFlush(t *testing.T) {
	inferCalls := 0
	r := testRecognizer(func([]float32) (string, error) {
		inferCalls++
		return "long monologue", nil
	})
	r.maxBufferDurationMs = 300

	var finals int
	for range 5 {
		_, final, err := r.Accept(makeSpeechPCM(1600))
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if final {
			finals++
		}
	}
	if finals == 0 {
		t.Fatal("continuous speech never flushed despite full buffer")
	}
	if inferCalls != finals {
		t.Errorf("inference calls %d != finals %d", inferCalls, finals)
	}
}

func TestRecognizer_ResetDiscardsPendingSpeech(t *testing.T) {
	inferCalls := 0
	r := testRecognizer(func([]float32) (string, error) {
		inferCalls++
		return "stale", nil
	})

	if _, _, err := r.Accept(makeSpeechPCM(1600)); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	r.Reset()

	// Silence after a reset must not flush the discarded speech.
	for range 6 {
		text, final, err := r.Accept(makeSilencePCM(1600))
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if final || text != "" {
			t.Fatalf("utterance survived Reset: %q", text)
		}
	}
	if inferCalls != 0 {
		t.Errorf("inference ran %d times after Reset", inferCalls)
	}
}

func TestRecognizer_EmptyInferenceIsNotFinal(t *testing.T) {
	r := testRecognizer(func([]float32) (string, error) {
		return "", nil
	})

	r.Accept(makeSpeechPCM(1600))
	var finals int
	for range 5 {
		_, final, err := r.Accept(makeSilencePCM(1600))
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if final {
			finals++
		}
	}
	if finals != 0 {
		t.Errorf("empty inference reported as final %d times", finals)
	}
}

func TestRecognizer_InferErrorIsWrapped(t *testing.T) {
	wantErr := errors.New("model exploded")
	r := testRecognizer(func([]float32) (string, error) {
		return "", wantErr
	})

	r.Accept(makeSpeechPCM(1600))
	var err error
	for range 5 {
		if _, _, err = r.Accept(makeSilencePCM(1600)); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatal("expected inference error to surface")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error not wrapped: %v", err)
	}
	if !strings.Contains(err.Error(), "whisper:") {
		t.Errorf("error missing package prefix: %v", err)
	}
}

func TestRecognizer_SpeechResumesAfterFlush(t *testing.T) {
	utterances := []string{"first", "second"}
	inferCalls := 0
	r := testRecognizer(func([]float32) (string, error) {
		text := utterances[inferCalls%len(utterances)]
		inferCalls++
		return text, nil
	})

	say := func() string {
		t.Helper()
		r.Accept(makeSpeechPCM(1600))
		for range 5 {
			if text, final, err := r.Accept(makeSilencePCM(1600)); err != nil {
				t.Fatalf("Accept: %v", err)
			} else if final {
				return text
			}
		}
		t.Fatal("utterance never finalized")
		return ""
	}

	if got := say(); got != "first" {
		t.Errorf("first utterance: got %q", got)
	}
	if got := say(); got != "second" {
		t.Errorf("second utterance: got %q", got)
	}
}

func TestPCMDurationMs(t *testing.T) {
	// 1600 samples at 16 kHz is 100 ms.
	if got := pcmDurationMs(make([]byte, 3200), 16000); got != 100 {
		t.Errorf("got %d ms, want 100", got)
	}
	if got := pcmDurationMs(nil, 16000); got != 0 {
		t.Errorf("empty pcm: got %d ms, want 0", got)
	}
	if got := pcmDurationMs(make([]byte, 3200), 0); got != 0 {
		t.Errorf("zero rate: got %d ms, want 0", got)
	}
}
