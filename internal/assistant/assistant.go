// Package assistant runs the voice interaction loop: listen for the wake
// phrase, record a spoken command, transcribe it, ask for a reply, and
// speak the answer.
//
// The Assistant owns no devices itself; it drives injected collaborators
// and keeps the loop alive through handled failures. A consecutive-error
// budget triggers a pipeline reinitialisation when too many turns fail in
// a row, so a wedged device or provider recovers without a restart.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/capture"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/resilience"
	"github.com/MrWong99/auricle/internal/wakeword"
	"github.com/MrWong99/auricle/pkg/audio"
)

// Spoken prompts for the fixed interaction points of the loop.
const (
	startupLine       = "Voice assistant initialized. Listening for wake word."
	ackLine           = "Yes, how can I help you?"
	clarificationLine = "I couldn't understand that. Could you please repeat?"
	apologyLine       = "I'm having trouble processing that request."
	errorLine         = "I encountered an error while processing your request."
)

const (
	defaultCommandDuration = 5 * time.Second
	defaultChunkDuration   = 100 * time.Millisecond

	// errorBackoff is slept after a failed turn so a broken collaborator
	// cannot spin the loop.
	errorBackoff = time.Second

	// maxChunksPerPass bounds queue draining per loop pass so cancellation
	// is checked regularly even when the capture queue stays full.
	maxChunksPerPass = 32
)

// Recorder is the capture surface the orchestrator drives.
// [capture.Recorder] implements it.
type Recorder interface {
	Start() error
	Stop() *audio.Clip
	ReadChunk(timeout time.Duration) (audio.Clip, bool)
	RecordFor(ctx context.Context, duration time.Duration) (audio.Clip, error)
	Stats() capture.Stats
}

// Detector is the wake-word surface the orchestrator drives.
// [wakeword.Detector] implements it.
type Detector interface {
	StartListening(cb wakeword.Callback)
	StopListening()
	Reset()
	ProcessChunk(clip audio.Clip) bool
}

// Transcriber converts a recorded command into text. An empty string with a
// nil error means nothing was recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// Responder produces the assistant's reply to a transcribed command. It is
// expected to retry internally; a returned error is terminal for the turn.
type Responder interface {
	Ask(ctx context.Context, input string) (string, error)
}

// Speaker voices text to the user. Speak blocks until playback finishes
// and reports success; Stop halts any speech in progress.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
	Stop()
}

// Output is the playback surface a [VoiceSpeaker] drives.
// [playback.Player] implements it.
type Output interface {
	Play(clip audio.Clip, blocking bool) bool
	Stop()
}

// Config holds the collaborators and tuning for an [Assistant]. The five
// collaborator fields are required.
type Config struct {
	Recorder    Recorder
	Detector    Detector
	Transcriber Transcriber
	Responder   Responder
	Speaker     Speaker

	// CommandDuration is how long a command is recorded after the wake
	// acknowledgement. Defaults to 5s.
	CommandDuration time.Duration

	// ChunkDuration is the capture chunk length; the listen loop sleeps
	// half of it between passes. Defaults to 100ms.
	ChunkDuration time.Duration

	// MaxErrors is the consecutive-failure budget before the pipeline
	// reinitialises. Defaults to 3.
	MaxErrors int
}

// Assistant coordinates the continuous wake-word voice loop.
//
// Run is single-use: construct a new Assistant for every loop lifetime.
type Assistant struct {
	recorder    Recorder
	detector    Detector
	transcriber Transcriber
	responder   Responder
	speaker     Speaker

	commandDuration time.Duration
	cadence         time.Duration
	backoff         time.Duration
	budget          *resilience.Budget
	metrics         *observe.Metrics

	// Capture counter watermarks for metric delta syncing.
	lastCaptured int64
	lastDropped  int64
}

// New validates cfg and creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("assistant: Recorder must not be nil")
	}
	if cfg.Detector == nil {
		return nil, errors.New("assistant: Detector must not be nil")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("assistant: Transcriber must not be nil")
	}
	if cfg.Responder == nil {
		return nil, errors.New("assistant: Responder must not be nil")
	}
	if cfg.Speaker == nil {
		return nil, errors.New("assistant: Speaker must not be nil")
	}
	if cfg.CommandDuration <= 0 {
		cfg.CommandDuration = defaultCommandDuration
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = defaultChunkDuration
	}

	return &Assistant{
		recorder:        cfg.Recorder,
		detector:        cfg.Detector,
		transcriber:     cfg.Transcriber,
		responder:       cfg.Responder,
		speaker:         cfg.Speaker,
		commandDuration: cfg.CommandDuration,
		cadence:         cfg.ChunkDuration / 2,
		backoff:         errorBackoff,
		budget:          resilience.NewBudget(cfg.MaxErrors),
		metrics:         observe.DefaultMetrics(),
	}, nil
}

// ─── Run loop ────────────────────────────────────────────────────────────────

// Run starts the voice loop and blocks until ctx is cancelled.
//
// A device failure during initial startup is fatal and returned; once the
// loop is running, every failure is handled in place and the loop continues.
// On cancellation the recorder, playback, and detector are stopped before
// Run returns ctx's error.
func (a *Assistant) Run(ctx context.Context) error {
	if err := a.recorder.Start(); err != nil {
		return fmt.Errorf("assistant: start capture: %w", err)
	}
	a.detector.StartListening(a.onWake)
	defer a.teardown()

	a.speak(ctx, startupLine)
	slog.Info("assistant: listening for wake word")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if a.budget.Exhausted() {
			slog.Warn("assistant: error budget exhausted, reinitializing pipeline",
				"errors", a.budget.Used())
			if err := a.reinit(); err != nil {
				a.fail(ctx, err)
				continue
			}
			a.resetBudget(ctx)
			a.metrics.PipelineReinits.Add(ctx, 1)
		}

		detected := false
		for range maxChunksPerPass {
			chunk, ok := a.recorder.ReadChunk(0)
			if !ok {
				break
			}
			if a.detector.ProcessChunk(chunk) {
				detected = true
				break
			}
		}
		a.syncCaptureStats(ctx)

		if detected {
			err := a.commandCycle(ctx)
			switch {
			case err == nil:
				a.resetBudget(ctx)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				// Shutdown raced the turn; the check at the top of the
				// loop exits on the next pass.
			default:
				a.fail(ctx, err)
			}
			continue
		}

		a.sleep(ctx, a.cadence)
	}
}

// ─── Turn handling ───────────────────────────────────────────────────────────

// commandCycle runs one wake-to-reply turn. The streaming capture session
// is stopped first so the acknowledgement and the command recording do not
// overlap, then the command is recorded for the configured duration and
// dispatched. The pipeline is restarted for the next turn regardless of the
// dispatch outcome.
func (a *Assistant) commandCycle(ctx context.Context) error {
	a.recorder.Stop()
	a.speak(ctx, ackLine)

	clip, err := a.recorder.RecordFor(ctx, a.commandDuration)

	var cycleErr error
	if err != nil {
		cycleErr = fmt.Errorf("record command: %w", err)
	} else {
		cycleErr = a.dispatch(ctx, clip)
	}

	if err := a.reinit(); err != nil {
		cycleErr = errors.Join(cycleErr, err)
	}
	return cycleErr
}

// dispatch turns a recorded command into a spoken reply. Each turn gets
// its own span so the transcribe, ask and speak stages land under one
// trace.
//
// An inaudible or unrecognized command asks the user to repeat and is not
// an error. A transcription failure or an exhausted reply attempt produces
// a spoken apology and counts against the error budget. A failed reply
// playback is logged only.
func (a *Assistant) dispatch(ctx context.Context, clip audio.Clip) error {
	ctx, span := observe.StartSpan(ctx, "assistant.turn")
	defer span.End()
	log := observe.Logger(ctx)

	if len(clip.Samples) == 0 {
		log.Warn("assistant: no audio data received")
		a.speak(ctx, clarificationLine)
		return nil
	}

	start := time.Now()
	text, err := a.transcriber.Transcribe(ctx, clip)
	a.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.speak(ctx, errorLine)
		return fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("assistant: nothing recognized in command")
		a.speak(ctx, clarificationLine)
		return nil
	}
	log.Info("assistant: command received", "text", text)

	start = time.Now()
	reply, err := a.responder.Ask(ctx, text)
	a.metrics.AskDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.speak(ctx, apologyLine)
		return fmt.Errorf("ask: %w", err)
	}

	start = time.Now()
	spoken := a.speaker.Speak(ctx, reply)
	a.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	if !spoken {
		log.Warn("assistant: reply playback failed")
	}
	return nil
}

// reinit returns the pipeline to a clean listening state: any capture
// session is stopped and its queued audio discarded, the detector forgets
// partial recognizer state, and a fresh capture session starts.
func (a *Assistant) reinit() error {
	a.recorder.Stop()
	a.detector.Reset()
	if err := a.recorder.Start(); err != nil {
		return fmt.Errorf("restart capture: %w", err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// onWake is the detection callback registered with the detector. Detection
// details are logged by the detector itself.
func (a *Assistant) onWake(string) {
	a.metrics.WakeDetections.Add(context.Background(), 1)
}

// speak voices a fixed prompt, logging when it cannot be spoken.
func (a *Assistant) speak(ctx context.Context, line string) {
	if !a.speaker.Speak(ctx, line) {
		slog.Warn("assistant: prompt not spoken", "text", line)
	}
}

// fail records a handled turn failure against the error budget and backs
// off before the next pass.
func (a *Assistant) fail(ctx context.Context, err error) {
	slog.Error("assistant: turn failed", "error", err)
	a.budget.Record()
	a.metrics.ConsecutiveErrors.Add(ctx, 1)
	a.sleep(ctx, a.backoff)
}

// resetBudget clears the error budget and drops the gauge back to zero.
func (a *Assistant) resetBudget(ctx context.Context) {
	if used := a.budget.Used(); used > 0 {
		a.metrics.ConsecutiveErrors.Add(ctx, -int64(used))
	}
	a.budget.Reset()
}

// syncCaptureStats forwards capture counter deltas to the metric
// instruments once per loop pass.
func (a *Assistant) syncCaptureStats(ctx context.Context) {
	stats := a.recorder.Stats()
	if d := stats.Captured - a.lastCaptured; d > 0 {
		a.metrics.ChunksCaptured.Add(ctx, d)
	}
	if d := stats.Dropped - a.lastDropped; d > 0 {
		a.metrics.ChunksDropped.Add(ctx, d)
	}
	a.lastCaptured, a.lastDropped = stats.Captured, stats.Dropped
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func (a *Assistant) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// teardown stops capture, playback, and detection on the way out of Run.
func (a *Assistant) teardown() {
	a.recorder.Stop()
	a.speaker.Stop()
	a.detector.StopListening()
	slog.Info("assistant: stopped")
}
