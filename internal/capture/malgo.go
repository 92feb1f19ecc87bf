package capture

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// MalgoOpener opens capture streams on the default system microphone through
// miniaudio. One opener owns one audio context; all streams opened from it
// share that context.
type MalgoOpener struct {
	ctx *malgo.AllocatedContext
}

var _ DeviceOpener = (*MalgoOpener)(nil)

// NewMalgoOpener initialises the miniaudio context.
func NewMalgoOpener() (*MalgoOpener, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init audio context: %w", err)
	}
	return &MalgoOpener{ctx: ctx}, nil
}

// Open configures a capture device for 16-bit PCM at the requested format.
func (o *MalgoOpener) Open(format Format, onData DataFunc) (Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	if format.ChunkFrames > 0 {
		cfg.PeriodSizeInFrames = uint32(format.ChunkFrames)
	}

	// miniaudio manages its own device-side ring buffer and does not report
	// overruns through the data callback, so deliveries are never flagged.
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			onData(pInput, false)
		},
	}

	device, err := malgo.InitDevice(o.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

// Close releases the miniaudio context.
func (o *MalgoOpener) Close() error {
	return o.ctx.Uninit()
}

type malgoStream struct {
	device *malgo.Device
}

func (s *malgoStream) Start() error {
	return s.device.Start()
}

func (s *malgoStream) Stop() error {
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
