package playback_test

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/auricle/internal/playback"
	"github.com/MrWong99/auricle/pkg/audio"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// fakeSession renders nothing; the test finishes it explicitly or through
// the engine's finishAfter timer.
type fakeSession struct {
	mu      sync.Mutex
	pcm     []byte
	playing bool
	halted  bool
	closed  bool
}

func (s *fakeSession) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSession) Halt() {
	s.mu.Lock()
	s.playing = false
	s.halted = true
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// finish marks the buffer as played out.
func (s *fakeSession) finish() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *fakeSession) wasHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pcm
}

// fakeEngine hands out fake sessions, letting tests drive playback without
// a sound card.
type fakeEngine struct {
	mu          sync.Mutex
	rate        int
	startErr    error
	finishAfter time.Duration
	sessions    []*fakeSession
	closed      bool
}

func (e *fakeEngine) SampleRate() int {
	if e.rate == 0 {
		return 16000
	}
	return e.rate
}

func (e *fakeEngine) Start(pcm []byte) (playback.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	s := &fakeSession{pcm: pcm, playing: true}
	if e.finishAfter > 0 {
		time.AfterFunc(e.finishAfter, s.finish)
	}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) last() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func (e *fakeEngine) opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func testClip() audio.Clip {
	return audio.Clip{
		Samples:    []float32{0.25, -0.25, 0.5, -0.5},
		SampleRate: 16000,
	}
}

// ── Play ─────────────────────────────────────────────────────────────────────

func TestPlay_BlockingRunsToCompletion(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{finishAfter: 30 * time.Millisecond}
	player := playback.New(engine)

	if !player.Play(testClip(), true) {
		t.Fatal("expected blocking Play to succeed")
	}
	if player.Playing() {
		t.Error("nothing should be playing after blocking Play returns")
	}
	if !engine.last().isClosed() {
		t.Error("expected session to be closed")
	}
}

func TestPlay_NonBlockingConfirmsStart(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("expected non-blocking Play to confirm start")
	}
	if !player.Playing() {
		t.Error("expected playback to be active")
	}

	engine.last().finish()
	if !player.WaitUntilDone(time.Second) {
		t.Error("expected playback to finish")
	}
}

func TestPlay_SecondPlayStopsFirst(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("first Play failed")
	}
	first := engine.last()

	if !player.Play(testClip(), false) {
		t.Fatal("second Play failed")
	}
	if !first.wasHalted() {
		t.Error("expected first playback to be halted")
	}
	if got := engine.opened(); got != 2 {
		t.Errorf("opened %d sessions, want 2", got)
	}
	if !player.Playing() {
		t.Error("expected second playback to be active")
	}
	player.Stop()
}

func TestPlay_EmptyClip(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if player.Play(audio.Clip{SampleRate: 16000}, true) {
		t.Error("expected Play of an empty clip to report false")
	}
	if engine.opened() != 0 {
		t.Error("no session should be opened for an empty clip")
	}
}

func TestPlay_DeviceStartFails(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{startErr: errors.New("speaker unavailable")}
	player := playback.New(engine)

	if player.Play(testClip(), true) {
		t.Error("expected blocking Play to fail")
	}
	if player.Play(testClip(), false) {
		t.Error("expected non-blocking Play to fail")
	}
}

func TestPlay_NormalizesWithoutMutatingCaller(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{finishAfter: 20 * time.Millisecond}
	player := playback.New(engine)

	clip := audio.Clip{Samples: []float32{2, -2}, SampleRate: 16000}
	if !player.Play(clip, true) {
		t.Fatal("expected Play to succeed")
	}

	// Peak 2.0 rescales to full scale before rendering.
	pcm := engine.last().bytes()
	if len(pcm) != 4 {
		t.Fatalf("pcm length = %d, want 4", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm)); got != 32767 {
		t.Errorf("first sample = %d, want 32767", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -32767 {
		t.Errorf("second sample = %d, want -32767", got)
	}

	// The caller's clip is left untouched.
	if clip.Samples[0] != 2 || clip.Samples[1] != -2 {
		t.Errorf("caller samples modified: %v", clip.Samples)
	}
}

func TestPlay_ResamplesToDeviceRate(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{rate: 32000, finishAfter: 20 * time.Millisecond}
	player := playback.New(engine)

	clip := audio.Clip{Samples: make([]float32, 100), SampleRate: 16000}
	if !player.Play(clip, true) {
		t.Fatal("expected Play to succeed")
	}

	// 100 samples at 16 kHz become 200 at 32 kHz, 2 bytes each.
	if got := len(engine.last().bytes()); got != 400 {
		t.Errorf("pcm length = %d, want 400", got)
	}
}

// ── Stop / WaitUntilDone ─────────────────────────────────────────────────────

func TestStop_HaltsAndIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("Play failed")
	}
	player.Stop()
	if !engine.last().wasHalted() {
		t.Error("expected session to be halted")
	}
	if player.Playing() {
		t.Error("expected playback to be inactive after Stop")
	}

	// Second Stop, and Stop without playback, are no-ops.
	player.Stop()
	playback.New(&fakeEngine{}).Stop()
}

func TestStop_InterruptsBlockingPlay(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	done := make(chan bool, 1)
	go func() {
		done <- player.Play(testClip(), true)
	}()

	time.Sleep(50 * time.Millisecond)
	player.Stop()

	select {
	case ok := <-done:
		if ok {
			t.Error("stopped playback should report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking Play did not return after Stop")
	}
}

func TestWaitUntilDone_Timeout(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("Play failed")
	}
	if player.WaitUntilDone(50 * time.Millisecond) {
		t.Error("expected timeout while playback is still running")
	}

	engine.last().finish()
	if !player.WaitUntilDone(time.Second) {
		t.Error("expected completion after the session finished")
	}
}

func TestWaitUntilDone_NoActivePlayback(t *testing.T) {
	t.Parallel()

	player := playback.New(&fakeEngine{})
	if !player.WaitUntilDone(10 * time.Millisecond) {
		t.Error("expected true when nothing is playing")
	}
}

func TestWaitUntilDone_ZeroWaitsIndefinitely(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{finishAfter: 50 * time.Millisecond}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("Play failed")
	}
	if !player.WaitUntilDone(0) {
		t.Error("expected WaitUntilDone(0) to block until completion")
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestClose_StopsPlaybackAndReleasesEngine(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	player := playback.New(engine)

	if !player.Play(testClip(), false) {
		t.Fatal("Play failed")
	}
	if err := player.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !engine.last().wasHalted() {
		t.Error("expected playback to be halted on Close")
	}
	if !engine.isClosed() {
		t.Error("expected engine to be closed")
	}
}
