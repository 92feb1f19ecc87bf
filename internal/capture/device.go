package capture

import (
	"errors"
	"time"
)

// ErrDevice marks sound-hardware failures: the capture device could not be
// opened or started. Callers distinguish it from transient pipeline errors
// because a missing device cannot be retried away.
var ErrDevice = errors.New("audio device failure")

// Format describes the capture stream requested from a device.
type Format struct {
	// SampleRate of the stream in Hz.
	SampleRate int

	// Channels delivered by the device. Multi-channel input is downmixed
	// to mono before it enters the pipeline.
	Channels int

	// ChunkFrames is the number of frames the device should deliver per
	// data callback.
	ChunkFrames int
}

// ChunkDuration returns the play time of one callback delivery, or 0 for an
// unconfigured format.
func (f Format) ChunkDuration() time.Duration {
	if f.SampleRate <= 0 || f.ChunkFrames <= 0 {
		return 0
	}
	return time.Duration(f.ChunkFrames) * time.Second / time.Duration(f.SampleRate)
}

// DataFunc receives one chunk of interleaved 16-bit little-endian PCM on the
// device's audio thread. overflowed reports a device-side buffer overrun for
// this delivery. Implementations must not retain pcm after returning.
type DataFunc func(pcm []byte, overflowed bool)

// Stream is one live capture session produced by a [DeviceOpener].
type Stream interface {
	// Start begins delivering audio to the data callback.
	Start() error

	// Stop halts delivery. It does not return until in-flight callbacks
	// have completed.
	Stop() error

	// Close releases the session. The stream cannot be restarted.
	Close() error
}

// DeviceOpener creates capture streams. The production implementation wraps
// malgo ([NewMalgoOpener]); tests substitute a fake that drives the data
// callback without hardware.
type DeviceOpener interface {
	Open(format Format, onData DataFunc) (Stream, error)

	// Close releases the underlying audio context. Open must not be called
	// afterwards.
	Close() error
}
