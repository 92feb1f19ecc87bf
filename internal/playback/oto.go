package playback

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoEngine renders audio through the default output device. One engine
// owns the process-wide oto context.
type OtoEngine struct {
	ctx  *oto.Context
	rate int
}

var _ Engine = (*OtoEngine)(nil)

// NewOtoEngine initialises the speaker for 16-bit mono output at
// sampleRate. It blocks until the device is ready.
func NewOtoEngine(sampleRate int) (*OtoEngine, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("playback: init speaker: %w", err)
	}
	<-ready
	return &OtoEngine{ctx: ctx, rate: sampleRate}, nil
}

// SampleRate is the rate the output device was opened with.
func (e *OtoEngine) SampleRate() int { return e.rate }

// Start begins rendering pcm on a new device player.
func (e *OtoEngine) Start(pcm []byte) (Session, error) {
	player := e.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	return &otoSession{player: player}, nil
}

// Close suspends the audio context. oto contexts cannot be destroyed, so a
// closed engine parks the device instead.
func (e *OtoEngine) Close() error {
	return e.ctx.Suspend()
}

type otoSession struct {
	player *oto.Player
}

func (s *otoSession) Playing() bool { return s.player.IsPlaying() }

func (s *otoSession) Halt() { s.player.Pause() }

func (s *otoSession) Close() error { return s.player.Close() }
