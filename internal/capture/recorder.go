// Package capture implements microphone recording: a continuously running
// capture stream whose chunks feed the wake-word detector, and a blocking
// fixed-duration path for recording a command after the wake phrase.
//
// The audio-thread callback converts device PCM to normalised mono float32
// and enqueues it on a bounded queue; a full queue evicts the oldest chunk
// so the newest audio always wins. Repeated device-reported overflows stop
// the recorder rather than letting it fall further behind.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
)

const (
	defaultQueueCapacity = 100
	defaultMaxOverflows  = 5
	defaultDrainTimeout  = time.Second

	// drainIdleWindow is how long Stop keeps waiting for one more in-flight
	// callback delivery before it considers the queue drained.
	drainIdleWindow = 100 * time.Millisecond
)

// Recorder owns at most one live capture stream at a time.
//
// All exported methods are safe for concurrent use. The mutex guards
// start/stop transitions only; audio flows through a buffered channel and
// is never delivered under the lock.
type Recorder struct {
	opener DeviceOpener
	format Format

	queueCap     int
	maxOverflows int
	drainTimeout time.Duration

	mu        sync.Mutex
	stream    Stream
	queue     chan []float32
	recording bool
	fixed     bool

	overflows      atomic.Int64 // consecutive device overflows, reset by clean deliveries
	totalOverflows atomic.Int64
	captured       atomic.Int64
	dropped        atomic.Int64
}

// Stats is a snapshot of recorder activity counters.
type Stats struct {
	// Captured is the number of chunks enqueued since construction.
	Captured int64

	// Dropped is the number of chunks evicted because the queue was full.
	Dropped int64

	// Overflows is the total number of device-reported overruns.
	Overflows int64

	// Recording reports whether a streaming session is live.
	Recording bool
}

// Option configures a [Recorder] during construction.
type Option func(*Recorder)

// WithQueueCapacity bounds the chunk queue between the capture callback and
// the consumer. The default is 100 chunks.
func WithQueueCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queueCap = n
		}
	}
}

// WithMaxOverflows sets the number of consecutive device overflows after
// which the recorder stops itself. The default is 5.
func WithMaxOverflows(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxOverflows = n
		}
	}
}

// WithDrainTimeout bounds how long Stop waits for in-flight callback
// deliveries before returning the captured audio. The default is 1s.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

// New creates a Recorder that opens capture streams through opener.
func New(opener DeviceOpener, format Format, opts ...Option) *Recorder {
	r := &Recorder{
		opener:       opener,
		format:       format,
		queueCap:     defaultQueueCapacity,
		maxOverflows: defaultMaxOverflows,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the capture stream and begins enqueueing chunks. Calling Start
// while already recording is a no-op. Device failures are wrapped in
// [ErrDevice] and returned; they are not retried here.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		slog.Debug("capture: already recording")
		return nil
	}
	if r.fixed {
		return fmt.Errorf("capture: fixed-duration capture in progress")
	}

	r.overflows.Store(0)
	q := make(chan []float32, r.queueCap)
	onData := func(pcm []byte, overflowed bool) {
		r.handleChunk(q, pcm, overflowed)
	}

	stream, err := r.opener.Open(r.format, onData)
	if err != nil {
		return fmt.Errorf("capture: open device: %w: %w", ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("capture: start stream: %w: %w", ErrDevice, err)
	}

	r.stream = stream
	r.queue = q
	r.recording = true
	slog.Info("capture: recording started",
		"sample_rate", r.format.SampleRate,
		"channels", r.format.Channels,
		"chunk_frames", r.format.ChunkFrames)
	return nil
}

// Stop halts the capture stream and returns the queued audio concatenated in
// arrival order, or nil if nothing was captured. The queue is drained under
// a bounded wait so in-flight callback deliveries still land. Stop without a
// preceding Start returns nil.
func (r *Recorder) Stop() *audio.Clip {
	r.mu.Lock()
	stream := r.stream
	q := r.queue
	r.stream = nil
	r.queue = nil
	r.recording = false
	r.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			slog.Warn("capture: stop stream", "err", err)
		}
		_ = stream.Close()
	}
	if q == nil {
		return nil
	}

	samples := drainQueue(q, r.drainTimeout)
	if len(samples) == 0 {
		return nil
	}
	slog.Debug("capture: recording stopped", "samples", len(samples))
	return &audio.Clip{Samples: samples, SampleRate: r.format.SampleRate}
}

// ReadChunk consumes the next queued chunk in arrival order, waiting up to
// timeout for one to arrive. A timeout <= 0 polls without waiting. The
// second return value is false when no chunk was available.
func (r *Recorder) ReadChunk(timeout time.Duration) (audio.Clip, bool) {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()

	if q == nil {
		return audio.Clip{}, false
	}

	if timeout <= 0 {
		select {
		case samples := <-q:
			return audio.Clip{Samples: samples, SampleRate: r.format.SampleRate}, true
		default:
			return audio.Clip{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case samples := <-q:
		return audio.Clip{Samples: samples, SampleRate: r.format.SampleRate}, true
	case <-timer.C:
		return audio.Clip{}, false
	}
}

// RecordFor captures audio for the given duration on a dedicated blocking
// path with a fresh device session, bypassing the chunk queue. The result is
// normalised mono audio at the recorder's sample rate. It fails with
// [ErrDevice] when the device cannot be opened and honours ctx cancellation.
func (r *Recorder) RecordFor(ctx context.Context, duration time.Duration) (audio.Clip, error) {
	if duration <= 0 {
		return audio.Clip{}, fmt.Errorf("capture: duration must be positive, got %v", duration)
	}

	r.mu.Lock()
	if r.recording || r.fixed {
		r.mu.Unlock()
		return audio.Clip{}, fmt.Errorf("capture: another capture session is active")
	}
	r.fixed = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.fixed = false
		r.mu.Unlock()
	}()

	var (
		sampleMu sync.Mutex
		samples  []float32
	)
	onData := func(pcm []byte, _ bool) {
		mono := audio.PCM16ToFloat32Mono(pcm, r.format.Channels)
		sampleMu.Lock()
		samples = append(samples, mono...)
		sampleMu.Unlock()
	}

	stream, err := r.opener.Open(r.format, onData)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("capture: open device: %w: %w", ErrDevice, err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return audio.Clip{}, fmt.Errorf("capture: start stream: %w: %w", ErrDevice, err)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		if err := stream.Stop(); err != nil {
			slog.Warn("capture: stop fixed recording", "err", err)
		}
		return audio.Clip{}, fmt.Errorf("capture: fixed capture cancelled: %w", ctx.Err())
	}

	if err := stream.Stop(); err != nil {
		slog.Warn("capture: stop fixed recording", "err", err)
	}

	sampleMu.Lock()
	out := samples
	sampleMu.Unlock()

	return audio.Clip{Samples: audio.Normalize(out), SampleRate: r.format.SampleRate}, nil
}

// Recording reports whether a streaming capture session is live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Stats returns a snapshot of the recorder's activity counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Captured:  r.captured.Load(),
		Dropped:   r.dropped.Load(),
		Overflows: r.totalOverflows.Load(),
		Recording: r.Recording(),
	}
}

// Close stops any live capture and releases the device context. The
// recorder cannot be used afterwards.
func (r *Recorder) Close() error {
	r.Stop()
	return r.opener.Close()
}

// handleChunk runs on the device's audio thread. It converts one PCM
// delivery to normalised mono samples and enqueues it, evicting the oldest
// chunk when the queue is full. It must never block and never panic.
func (r *Recorder) handleChunk(q chan []float32, pcm []byte, overflowed bool) {
	if overflowed {
		r.totalOverflows.Add(1)
		n := r.overflows.Add(1)
		if r.maxOverflows > 0 && n >= int64(r.maxOverflows) {
			// Stop off the audio thread; queued audio stays readable and
			// is surfaced by the next Stop.
			go r.haltStream(q, n)
			return
		}
	} else {
		r.overflows.Store(0)
	}

	samples := audio.Normalize(audio.PCM16ToFloat32Mono(pcm, r.format.Channels))

	select {
	case q <- samples:
		r.captured.Add(1)
	default:
		// Queue full: evict the oldest chunk to admit the newest.
		select {
		case <-q:
			r.dropped.Add(1)
		default:
		}
		select {
		case q <- samples:
			r.captured.Add(1)
		default:
		}
	}
}

// haltStream stops and releases the live stream without harvesting the
// queue. Called when consecutive overflows exceed the configured maximum.
// q identifies the session that overflowed; a newer session is left alone.
func (r *Recorder) haltStream(q chan []float32, overflows int64) {
	r.mu.Lock()
	if r.queue != q {
		r.mu.Unlock()
		return
	}
	stream := r.stream
	r.stream = nil
	r.recording = false
	r.mu.Unlock()

	if stream == nil {
		return
	}
	slog.Warn("capture: too many consecutive overflows, stopping recorder", "overflows", overflows)
	if err := stream.Stop(); err != nil {
		slog.Warn("capture: stop stream after overflow", "err", err)
	}
	_ = stream.Close()
}

// drainQueue collects queued chunks into one sample slice. It returns when
// the total deadline passes or when no further chunk arrives within the
// idle window.
func drainQueue(q <-chan []float32, limit time.Duration) []float32 {
	var samples []float32
	deadline := time.After(limit)
	for {
		idle := time.NewTimer(drainIdleWindow)
		select {
		case chunk := <-q:
			idle.Stop()
			samples = append(samples, chunk...)
		case <-deadline:
			idle.Stop()
			return samples
		case <-idle.C:
			return samples
		}
	}
}
