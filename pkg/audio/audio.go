// Package audio defines the sample formats and conversions shared by the
// capture, playback, wake-word, and provider layers.
//
// The unit of audio transport is the [Clip]: mono float32 samples normalised
// to the range [-1, 1] at a known sample rate. Clips are produced by the
// microphone capture callback, consumed chunk-wise by the wake-word detector,
// handed to STT providers for transcription, and returned by TTS providers
// for playback.
//
// Conversion helpers cover the two borders of that world: 16-bit signed
// little-endian PCM (what sound devices and network providers speak) and
// normalised float32 (what everything in between works with).
package audio

import "time"

// Clip is a buffer of mono audio samples normalised to [-1, 1].
type Clip struct {
	// Samples holds normalised mono float32 samples. Never contains NaN or
	// Inf values; normalisation at ingestion enforces this.
	Samples []float32

	// SampleRate in Hz (e.g. 16000 for STT input, 22050 for synthesised speech).
	SampleRate int
}

// Duration returns the play time of the clip, or 0 for an empty or
// unconfigured clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || len(c.Samples) == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.Samples) == 0 }

// Append returns a clip holding c's samples followed by next's. The sample
// rate of the receiver wins; callers are expected to only append clips of the
// same rate.
func (c Clip) Append(next Clip) Clip {
	if c.SampleRate == 0 {
		c.SampleRate = next.SampleRate
	}
	c.Samples = append(c.Samples, next.Samples...)
	return c
}
