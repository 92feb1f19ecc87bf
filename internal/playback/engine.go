package playback

// Session is one live rendering of a PCM buffer.
type Session interface {
	// Playing reports whether audio is still being rendered. It becomes
	// false once the buffer has been played out.
	Playing() bool

	// Halt stops rendering immediately. The session cannot resume.
	Halt()

	// Close releases the session.
	Close() error
}

// Engine turns PCM buffers into playback sessions. The production
// implementation wraps the process-wide oto context ([NewOtoEngine]); tests
// substitute a fake that plays without a sound card.
type Engine interface {
	// SampleRate is the output device rate in Hz. Clips at other rates are
	// resampled before rendering.
	SampleRate() int

	// Start begins rendering pcm, 16-bit little-endian mono samples at
	// SampleRate.
	Start(pcm []byte) (Session, error)

	// Close releases the output device.
	Close() error
}
