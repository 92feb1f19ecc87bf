package whisper

import (
	"errors"
	"fmt"

	"github.com/MrWong99/auricle/pkg/audio"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which audio is considered silent. The maximum
	// possible value for 16-bit audio is 32 767; 300 corresponds to
	// near-silence.
	defaultRMSThreshold = 300.0

	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Recognizer turns a continuous stream of 16-bit little-endian mono PCM
// chunks into finalized utterances for wake-phrase matching. Audio is
// buffered while speech is present (RMS above the threshold); inference
// runs once the speaker pauses long enough, or when the buffer reaches its
// maximum duration.
//
// Accept and Reset must be called from a single goroutine. The underlying
// whisper context is not thread-safe, and the wake-word detector is the
// only intended caller.
type Recognizer struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int

	// infer runs inference over 16 kHz mono samples. Replaceable in tests.
	infer func(samples []float32) (string, error)

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

// RecognizerOption is a functional option for configuring a Recognizer.
type RecognizerOption func(*Recognizer)

// WithRecognizerLanguage sets the BCP-47 language code for utterance
// recognition. Defaults to "en".
func WithRecognizerLanguage(lang string) RecognizerOption {
	return func(r *Recognizer) {
		if lang != "" {
			r.language = lang
		}
	}
}

// WithRecognizerSampleRate sets the sample rate in Hz of the PCM chunks
// delivered to Accept. Defaults to 16000.
func WithRecognizerSampleRate(rate int) RecognizerOption {
	return func(r *Recognizer) {
		if rate > 0 {
			r.sampleRate = rate
		}
	}
}

// WithRMSThreshold sets the silence energy threshold in 16-bit PCM units.
// Defaults to 300.
func WithRMSThreshold(rms float64) RecognizerOption {
	return func(r *Recognizer) {
		if rms > 0 {
			r.rmsThreshold = rms
		}
	}
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// finalizes the buffered utterance. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) RecognizerOption {
	return func(r *Recognizer) {
		if ms > 0 {
			r.silenceThresholdMs = ms
		}
	}
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a forced flush. Defaults to 10 000 ms (10 s).
func WithMaxBufferDurationMs(ms int) RecognizerOption {
	return func(r *Recognizer) {
		if ms > 0 {
			r.maxBufferDurationMs = ms
		}
	}
}

// NewRecognizer creates a Recognizer that loads its whisper.cpp model from
// the given file path. Wake detection runs continuously, so this is
// typically a small model (e.g., ggml-tiny.en.bin). The caller must call
// Close when the recognizer is no longer needed.
func NewRecognizer(modelPath string, opts ...RecognizerOption) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(r)
	}
	r.infer = func(samples []float32) (string, error) {
		return infer(model, r.language, samples)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Accept analyses one PCM chunk. When the chunk completes an utterance
// (enough trailing silence after speech, or a full buffer) it runs
// inference and returns the recognised text with final set to true.
// Otherwise it returns ("", false, nil). Silence with no preceding speech
// is discarded without buffering.
func (r *Recognizer) Accept(chunk []byte) (text string, final bool, err error) {
	rms := audio.RMS(chunk)
	chunkMs := pcmDurationMs(chunk, r.sampleRate)

	if rms < r.rmsThreshold {
		if !r.hadSpeech {
			return "", false, nil
		}
		r.silenceMs += chunkMs
		r.buffer = append(r.buffer, chunk...)
		if r.silenceMs >= r.silenceThresholdMs {
			return r.flush()
		}
		return "", false, nil
	}

	r.hadSpeech = true
	r.silenceMs = 0
	r.buffer = append(r.buffer, chunk...)
	if limit := r.maxBufferBytes(); limit > 0 && len(r.buffer) >= limit {
		return r.flush()
	}
	return "", false, nil
}

// Reset discards buffered audio and silence-tracking state without
// releasing the model.
func (r *Recognizer) Reset() {
	r.buffer = nil
	r.hadSpeech = false
	r.silenceMs = 0
}

// flush runs inference over the buffered utterance and resets the
// buffering state. An utterance the model hears as empty yields
// ("", false, nil) so callers only see non-empty finals.
func (r *Recognizer) flush() (string, bool, error) {
	pcm := r.buffer
	r.Reset()
	if len(pcm) == 0 {
		return "", false, nil
	}

	samples := audio.Resample(audio.PCM16ToFloat32(pcm), r.sampleRate, modelSampleRate)
	text, err := r.infer(samples)
	if err != nil {
		return "", false, fmt.Errorf("whisper: recognize utterance: %w", err)
	}
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// maxBufferBytes converts the maximum buffer duration into bytes at the
// configured input rate.
func (r *Recognizer) maxBufferBytes() int {
	return r.maxBufferDurationMs * bytesPerMs(r.sampleRate)
}

// bytesPerMs returns the byte rate of mono 16-bit PCM at rate Hz.
func bytesPerMs(rate int) int {
	return rate * (bitsPerSample / 8) / 1000
}

// pcmDurationMs returns the duration in milliseconds of mono 16-bit PCM at
// rate Hz.
func pcmDurationMs(pcm []byte, rate int) int {
	bpm := bytesPerMs(rate)
	if bpm <= 0 {
		return 0
	}
	return len(pcm) / bpm
}
