package assistant

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/auricle/internal/capture"
	"github.com/MrWong99/auricle/internal/wakeword"
	"github.com/MrWong99/auricle/pkg/audio"
)

// ─── Test doubles ────────────────────────────────────────────────────────────

type commandResult struct {
	clip audio.Clip
	err  error
}

// fakeRecorder serves scripted chunks and command recordings. Start pops
// startErrs first, so restart failures can be scripted; starts counts only
// successful ones. RecordFor refuses to run while the streaming session is
// active, mirroring the real recorder.
type fakeRecorder struct {
	mu        sync.Mutex
	chunks    []audio.Clip
	commands  []commandResult
	startErrs []error
	starts    int
	stops     int
	records   int
	recording bool
	stats     capture.Stats
}

func (f *fakeRecorder) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return err
		}
	}
	f.starts++
	f.recording = true
	return nil
}

func (f *fakeRecorder) Stop() *audio.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.recording = false
	return nil
}

func (f *fakeRecorder) ReadChunk(time.Duration) (audio.Clip, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chunks) == 0 {
		return audio.Clip{}, false
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	return chunk, true
}

func (f *fakeRecorder) RecordFor(context.Context, time.Duration) (audio.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	if f.recording {
		return audio.Clip{}, errors.New("capture: another capture session is active")
	}
	if len(f.commands) == 0 {
		return audio.Clip{}, nil
	}
	res := f.commands[0]
	f.commands = f.commands[1:]
	return res.clip, res.err
}

func (f *fakeRecorder) Stats() capture.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeRecorder) counts() (starts, stops, records int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.records
}

type fakeSpeaker struct {
	mu    sync.Mutex
	mute  bool
	lines []string
	stops int
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, text)
	return !f.mute
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lines)
}

func (f *fakeSpeaker) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, audio.Clip) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs []string
}

func (f *fakeResponder) Ask(_ context.Context, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeResponder) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.inputs)
}

// scriptRecognizer finalizes one scripted utterance per Accept call and
// reports silence once the script runs out.
type scriptRecognizer struct {
	mu         sync.Mutex
	utterances []string
}

func (r *scriptRecognizer) Accept([]byte) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.utterances) == 0 {
		return "", false, nil
	}
	u := r.utterances[0]
	r.utterances = r.utterances[1:]
	return u, true, nil
}

func (r *scriptRecognizer) Reset() {}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func listenChunk() audio.Clip {
	return audio.Clip{Samples: []float32{0.1, -0.1, 0.2, -0.2}, SampleRate: 16000}
}

func commandClip() audio.Clip {
	return audio.Clip{Samples: make([]float32, 800), SampleRate: 16000}
}

// runFor drives a.Run on a background goroutine for d, cancels, and waits
// for it to return.
func runFor(t *testing.T, a *Assistant, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(d)
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
		return nil
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestNew_RequiresCollaborators(t *testing.T) {
	base := func() Config {
		return Config{
			Recorder:    &fakeRecorder{},
			Detector:    wakeword.New(&scriptRecognizer{}, "jarvis"),
			Transcriber: &fakeTranscriber{},
			Responder:   &fakeResponder{},
			Speaker:     &fakeSpeaker{},
		}
	}

	if _, err := New(base()); err != nil {
		t.Fatalf("New with full config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil recorder", func(c *Config) { c.Recorder = nil }},
		{"nil detector", func(c *Config) { c.Detector = nil }},
		{"nil transcriber", func(c *Config) { c.Transcriber = nil }},
		{"nil responder", func(c *Config) { c.Responder = nil }},
		{"nil speaker", func(c *Config) { c.Speaker = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRun_WakeTriggersCommandCycle(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk()},
		commands: []commandResult{{clip: commandClip()}},
	}
	recog := &scriptRecognizer{utterances: []string{"hey jarvis how are you"}}
	det := wakeword.New(recog, "jarvis", wakeword.WithThreshold(0.6))
	tr := &fakeTranscriber{text: "what time is it"}
	resp := &fakeResponder{reply: "It is almost noon."}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder:        rec,
		Detector:        det,
		Transcriber:     tr,
		Responder:       resp,
		Speaker:         spk,
		CommandDuration: 50 * time.Millisecond,
		ChunkDuration:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := runFor(t, a, 150*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	want := []string{
		"Voice assistant initialized. Listening for wake word.",
		"Yes, how can I help you?",
		"It is almost noon.",
	}
	if got := spk.spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken lines = %q, want %q", got, want)
	}
	if got := resp.asked(); !slices.Equal(got, []string{"what time is it"}) {
		t.Errorf("responder asked %q, want the transcribed command", got)
	}
	if _, _, records := rec.counts(); records != 1 {
		t.Errorf("command recordings = %d, want 1", records)
	}
	if det.Listening() {
		t.Error("detector still listening after shutdown")
	}
	if spk.stopCount() != 1 {
		t.Errorf("speaker stops = %d, want 1", spk.stopCount())
	}
}

func TestRun_EmptyTranscriptionAsksToRepeat(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk()},
		commands: []commandResult{{clip: commandClip()}},
	}
	recog := &scriptRecognizer{utterances: []string{"jarvis are you there"}}
	det := wakeword.New(recog, "jarvis")
	tr := &fakeTranscriber{text: "   "}
	resp := &fakeResponder{reply: "unreachable"}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder: rec, Detector: det, Transcriber: tr, Responder: resp, Speaker: spk,
		ChunkDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := runFor(t, a, 100*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	want := []string{
		"Voice assistant initialized. Listening for wake word.",
		"Yes, how can I help you?",
		"I couldn't understand that. Could you please repeat?",
	}
	if got := spk.spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken lines = %q, want %q", got, want)
	}
	if got := resp.asked(); len(got) != 0 {
		t.Errorf("responder asked %q, want no calls", got)
	}
	if used := a.budget.Used(); used != 0 {
		t.Errorf("error budget used = %d, want 0 for a clarification turn", used)
	}
}

func TestRun_EmptyCommandClipAsksToRepeat(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk()},
		commands: []commandResult{{clip: audio.Clip{}}},
	}
	recog := &scriptRecognizer{utterances: []string{"okay jarvis"}}
	det := wakeword.New(recog, "jarvis")
	tr := &fakeTranscriber{text: "unreachable"}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder: rec, Detector: det, Transcriber: tr,
		Responder: &fakeResponder{}, Speaker: spk,
		ChunkDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := runFor(t, a, 100*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if tr.callCount() != 0 {
		t.Errorf("transcriber calls = %d, want 0 for an empty recording", tr.callCount())
	}
	wantLast := "I couldn't understand that. Could you please repeat?"
	if got := spk.spoken(); len(got) == 0 || got[len(got)-1] != wantLast {
		t.Errorf("spoken lines = %q, want clarification last", got)
	}
}

func TestRun_TranscribeFailureSpeaksErrorLine(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk()},
		commands: []commandResult{{clip: commandClip()}},
	}
	recog := &scriptRecognizer{utterances: []string{"hey jarvis"}}
	det := wakeword.New(recog, "jarvis")
	tr := &fakeTranscriber{err: errors.New("engine offline")}
	resp := &fakeResponder{reply: "unreachable"}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder: rec, Detector: det, Transcriber: tr, Responder: resp, Speaker: spk,
		ChunkDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.backoff = time.Millisecond

	if err := runFor(t, a, 100*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	want := []string{
		"Voice assistant initialized. Listening for wake word.",
		"Yes, how can I help you?",
		"I encountered an error while processing your request.",
	}
	if got := spk.spoken(); !slices.Equal(got, want) {
		t.Errorf("spoken lines = %q, want %q", got, want)
	}
	if got := resp.asked(); len(got) != 0 {
		t.Errorf("responder asked %q, want no calls", got)
	}
	if used := a.budget.Used(); used != 1 {
		t.Errorf("error budget used = %d, want 1", used)
	}
}

func TestRun_ResponderFailureSpeaksApology(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk()},
		commands: []commandResult{{clip: commandClip()}},
	}
	recog := &scriptRecognizer{utterances: []string{"hey jarvis"}}
	det := wakeword.New(recog, "jarvis")
	tr := &fakeTranscriber{text: "tell me a story"}
	resp := &fakeResponder{err: errors.New("model overloaded")}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder: rec, Detector: det, Transcriber: tr, Responder: resp, Speaker: spk,
		ChunkDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.backoff = time.Millisecond

	if err := runFor(t, a, 100*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	wantLast := "I'm having trouble processing that request."
	if got := spk.spoken(); len(got) == 0 || got[len(got)-1] != wantLast {
		t.Errorf("spoken lines = %q, want apology last", got)
	}
	if used := a.budget.Used(); used != 1 {
		t.Errorf("error budget used = %d, want 1", used)
	}
}

func TestRun_ErrorBudgetTriggersSingleReinit(t *testing.T) {
	rec := &fakeRecorder{
		chunks:   []audio.Clip{listenChunk(), listenChunk()},
		commands: []commandResult{{clip: commandClip()}, {clip: commandClip()}},
	}
	recog := &scriptRecognizer{utterances: []string{"hey jarvis lights", "hey jarvis lights"}}
	det := wakeword.New(recog, "jarvis")
	tr := &fakeTranscriber{err: errors.New("engine offline")}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder: rec, Detector: det, Transcriber: tr,
		Responder: &fakeResponder{}, Speaker: spk,
		ChunkDuration: 10 * time.Millisecond,
		MaxErrors:     2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.backoff = time.Millisecond

	if err := runFor(t, a, 250*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	// One initial start, one restart at the end of each failed turn, and
	// exactly one budget-triggered restart.
	starts, _, records := rec.counts()
	if starts != 4 {
		t.Errorf("recorder starts = %d, want 4", starts)
	}
	if records != 2 {
		t.Errorf("command recordings = %d, want 2", records)
	}
	if used := a.budget.Used(); used != 0 {
		t.Errorf("error budget used = %d, want 0 after reinitialization", used)
	}
}

func TestRun_StartFailureIsFatal(t *testing.T) {
	rec := &fakeRecorder{startErrs: []error{errors.New("device busy")}}
	spk := &fakeSpeaker{}

	a, err := New(Config{
		Recorder:    rec,
		Detector:    wakeword.New(&scriptRecognizer{}, "jarvis"),
		Transcriber: &fakeTranscriber{},
		Responder:   &fakeResponder{},
		Speaker:     spk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Run(t.Context())
	if err == nil || !strings.Contains(err.Error(), "start capture") {
		t.Fatalf("Run returned %v, want a start capture error", err)
	}
	if got := spk.spoken(); len(got) != 0 {
		t.Errorf("spoken lines = %q, want none before a failed start", got)
	}
}
