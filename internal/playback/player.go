// Package playback renders clips through the system speaker. At most one
// playback is ever active: starting a new one stops whatever is currently
// playing. Playback failures are reported to the caller and logged; they
// never take the process down.
package playback

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
)

const (
	defaultJoinTimeout = time.Second

	// pollInterval is how often a playback task checks for completion and
	// stop requests while the device renders.
	pollInterval = 10 * time.Millisecond
)

// Player owns the output device. All methods are safe for concurrent use.
type Player struct {
	engine      Engine
	joinTimeout time.Duration

	mu     sync.Mutex
	active *task
}

// Option configures a [Player] during construction.
type Option func(*Player)

// WithJoinTimeout bounds how long Stop waits for the playback task to exit.
// The default is 1s.
func WithJoinTimeout(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.joinTimeout = d
		}
	}
}

// New creates a Player rendering through engine.
func New(engine Engine, opts ...Option) *Player {
	p := &Player{
		engine:      engine,
		joinTimeout: defaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play renders clip, stopping any playback already in progress. The clip is
// normalised and resampled to the device rate first; the caller's samples
// are not modified. With blocking true it runs on the calling goroutine and
// returns whether playback completed. With blocking false it returns true
// once the background task has confirmed the device started. A device
// failure returns false.
func (p *Player) Play(clip audio.Clip, blocking bool) bool {
	if clip.Empty() {
		slog.Debug("playback: empty clip, nothing to play")
		return false
	}

	samples := audio.Normalize(slices.Clone(clip.Samples))
	if clip.SampleRate != p.engine.SampleRate() {
		samples = audio.Resample(samples, clip.SampleRate, p.engine.SampleRate())
	}
	pcm := audio.Float32ToPCM16(samples)

	t := newTask()
	p.mu.Lock()
	prev := p.active
	p.active = t
	p.mu.Unlock()
	p.halt(prev)

	started := make(chan bool, 1)
	if blocking {
		t.run(p.engine, pcm, started)
		p.clearTask(t)
		return t.succeeded.Load()
	}

	go func() {
		t.run(p.engine, pcm, started)
		p.clearTask(t)
	}()
	return <-started
}

// Stop halts the active playback, if any, and waits for its task to exit
// bounded by the join timeout. It is idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	t := p.active
	p.active = nil
	p.mu.Unlock()
	p.halt(t)
}

// Playing reports whether a playback task is still running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	t := p.active
	p.mu.Unlock()
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// WaitUntilDone blocks until the active playback finishes or timeout
// passes, reporting whether it finished. A timeout <= 0 waits indefinitely.
// Without an active playback it returns true immediately.
func (p *Player) WaitUntilDone(timeout time.Duration) bool {
	p.mu.Lock()
	t := p.active
	p.mu.Unlock()
	if t == nil {
		return true
	}

	if timeout <= 0 {
		<-t.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops any playback and releases the output device.
func (p *Player) Close() error {
	p.Stop()
	return p.engine.Close()
}

// halt requests t to stop and joins it bounded by the join timeout. A
// missed deadline is logged, not escalated.
func (p *Player) halt(t *task) {
	if t == nil {
		return
	}
	t.stop()
	select {
	case <-t.done:
	case <-time.After(p.joinTimeout):
		slog.Warn("playback: timed out waiting for playback task to stop")
	}
}

// clearTask removes t as the active task if it still is.
func (p *Player) clearTask(t *task) {
	p.mu.Lock()
	if p.active == t {
		p.active = nil
	}
	p.mu.Unlock()
}

// task is one playback attempt. done closes when the task has exited;
// succeeded is set only when the buffer played out completely.
type task struct {
	cancel    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	succeeded atomic.Bool
}

func newTask() *task {
	return &task{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (t *task) stop() {
	t.stopOnce.Do(func() { close(t.cancel) })
}

// run renders pcm on the engine, confirming device start on started. It
// polls the session until the buffer is played out or a stop is requested.
func (t *task) run(engine Engine, pcm []byte, started chan<- bool) {
	defer close(t.done)

	session, err := engine.Start(pcm)
	if err != nil {
		slog.Error("playback: start device", "err", err)
		started <- false
		return
	}
	started <- true
	defer func() { _ = session.Close() }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for session.Playing() {
		select {
		case <-t.cancel:
			session.Halt()
			return
		case <-ticker.C:
		}
	}
	t.succeeded.Store(true)
}
