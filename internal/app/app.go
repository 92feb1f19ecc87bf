// Package app wires all auricle subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the voice loop and the HTTP API, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithRecorder, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/auricle/internal/assistant"
	"github.com/MrWong99/auricle/internal/capture"
	"github.com/MrWong99/auricle/internal/chat"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/health"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/playback"
	"github.com/MrWong99/auricle/internal/wakeword"
	"github.com/MrWong99/auricle/internal/web"
	"github.com/MrWong99/auricle/pkg/history"
	"github.com/MrWong99/auricle/pkg/history/inmem"
	"github.com/MrWong99/auricle/pkg/history/postgres"
	"github.com/MrWong99/auricle/pkg/provider/embeddings"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	whisperstt "github.com/MrWong99/auricle/pkg/provider/stt/whisper"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// httpShutdownGrace is how long in-flight HTTP requests get to finish
// when Run winds down.
const httpShutdownGrace = 5 * time.Second

// observeShutdownTimeout bounds the telemetry flush during Shutdown.
const observeShutdownTimeout = 2 * time.Second

// Providers holds one interface value per provider slot. STT, TTS and LLM
// are required; a nil Embeddings disables semantic recall on the history
// store. Populated by main.go via the config registry.
type Providers struct {
	STT        stt.Provider
	TTS        tts.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the auricle voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store      history.Store
	chat       *chat.Service
	recorder   assistant.Recorder
	player     *playback.Player
	recognizer wakeword.Recognizer
	detector   *wakeword.Detector
	speaker    assistant.Speaker
	loop       *assistant.Assistant
	checks     *health.Handler
	httpSrv    *http.Server

	// closers are called newest-first during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a history store instead of creating one from config.
// An injected store is not closed by Shutdown.
func WithStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecorder injects a recorder instead of opening a capture device.
func WithRecorder(r assistant.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithRecognizer injects a wake-word recognizer instead of loading the
// whisper model from config.
func WithRecognizer(r wakeword.Recognizer) Option {
	return func(a *App) { a.recognizer = r }
}

// WithSpeaker injects a speaker instead of opening a playback device.
func WithSpeaker(s assistant.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use
// Option functions to inject test doubles for any hardware-backed
// subsystem.
//
// Initialisation is ordered so every subsystem only depends on
// already-built ones. On failure the resources acquired so far are
// released before the error is returned.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if providers.STT == nil {
		return nil, errors.New("app: an stt provider is required")
	}
	if providers.TTS == nil {
		return nil, errors.New("app: a tts provider is required")
	}
	if providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 3. Chat service ──────────────────────────────────────────────────
	a.chat = chat.New(providers.LLM, a.store,
		chat.WithPersona(cfg.Assistant.Persona),
	)

	// ── 4. Audio I/O ─────────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 5. Wake-word detection ───────────────────────────────────────────
	if err := a.initWake(); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init wake detection: %w", err)
	}

	// ── 6. Voice loop ────────────────────────────────────────────────────
	if err := a.initLoop(); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init voice loop: %w", err)
	}

	// ── 7. HTTP API ──────────────────────────────────────────────────────
	if err := a.initWeb(); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init http api: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initObserve installs the metrics and trace providers.
func (a *App) initObserve(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "auricle",
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), observeShutdownTimeout)
		defer cancel()
		return shutdown(flushCtx)
	})
	return nil
}

// initHistory sets up the configured history store or uses an injected one.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	var embedder history.Embedder
	if a.providers.Embeddings != nil {
		embedder = a.providers.Embeddings
	}

	switch a.cfg.History.Backend {
	case config.HistoryPostgres:
		if a.cfg.History.PostgresDSN == "" {
			return errors.New("history.postgres_dsn is required for the postgres backend")
		}
		var opts []postgres.Option
		if embedder != nil {
			opts = append(opts, postgres.WithEmbedder(embedder))
		}
		store, err := postgres.NewStore(ctx, a.cfg.History.PostgresDSN, a.cfg.History.EmbeddingDimensions, opts...)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		var opts []inmem.Option
		if embedder != nil {
			opts = append(opts, inmem.WithEmbedder(embedder))
		}
		a.store = inmem.New(opts...)
	}

	slog.Info("history store ready",
		"backend", a.cfg.History.Backend,
		"semantic_recall", embedder != nil)
	return nil
}

// initAudio opens the capture and playback devices unless doubles were
// injected.
func (a *App) initAudio() error {
	if a.recorder == nil {
		opener, err := capture.NewMalgoOpener()
		if err != nil {
			return fmt.Errorf("open capture backend: %w", err)
		}
		rec := capture.New(opener, a.captureFormat(),
			capture.WithQueueCapacity(a.cfg.Capture.QueueCapacity),
			capture.WithMaxOverflows(a.cfg.Capture.MaxOverflows),
			capture.WithDrainTimeout(time.Duration(a.cfg.Capture.DrainTimeoutMs)*time.Millisecond),
		)
		a.recorder = rec
		// rec.Close releases the opener as well.
		a.closers = append(a.closers, rec.Close)
	}

	if a.speaker == nil {
		engine, err := playback.NewOtoEngine(a.cfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("open playback backend: %w", err)
		}
		a.player = playback.New(engine)
		a.closers = append(a.closers, a.player.Close)
		a.speaker = assistant.NewVoiceSpeaker(a.providers.TTS, a.player)
	}

	return nil
}

// initWake loads the wake model (unless a recognizer was injected) and
// builds the detector around it.
func (a *App) initWake() error {
	if a.recognizer == nil {
		if a.cfg.Wake.Model == "" {
			return errors.New("wake.model is required")
		}
		rec, err := whisperstt.NewRecognizer(a.cfg.Wake.Model,
			whisperstt.WithRecognizerSampleRate(a.cfg.Audio.SampleRate),
		)
		if err != nil {
			return fmt.Errorf("load wake model: %w", err)
		}
		a.recognizer = rec
		a.closers = append(a.closers, rec.Close)
	}

	var opts []wakeword.Option
	if a.cfg.Wake.Threshold > 0 {
		opts = append(opts, wakeword.WithThreshold(a.cfg.Wake.Threshold))
	}
	if a.cfg.Wake.PhoneticAssist {
		opts = append(opts, wakeword.WithPhoneticAssist())
	}
	a.detector = wakeword.New(a.recognizer, a.cfg.Wake.Phrase, opts...)
	return nil
}

// initLoop assembles the voice interaction loop from the built subsystems.
func (a *App) initLoop() error {
	loop, err := assistant.New(assistant.Config{
		Recorder:        a.recorder,
		Detector:        a.detector,
		Transcriber:     a.providers.STT,
		Responder:       a.chat,
		Speaker:         a.speaker,
		CommandDuration: time.Duration(a.cfg.Audio.RecordSeconds) * time.Second,
		ChunkDuration:   a.captureFormat().ChunkDuration(),
		MaxErrors:       a.cfg.Assistant.MaxErrors,
	})
	if err != nil {
		return err
	}
	a.loop = loop
	return nil
}

// initWeb builds the health checks, the HTTP API and the server around it.
func (a *App) initWeb() error {
	a.checks = health.New(health.Checker{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := a.store.Slots(ctx)
			return err
		},
	})

	srv, err := web.New(web.Config{
		Responder:   a.chat,
		Store:       a.store,
		TTS:         a.providers.TTS,
		Health:      a.checks,
		RecallLimit: a.cfg.History.RecallLimit,
	})
	if err != nil {
		return err
	}

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// captureFormat derives the capture stream format from the audio config.
func (a *App) captureFormat() capture.Format {
	return capture.Format{
		SampleRate:  a.cfg.Audio.SampleRate,
		Channels:    a.cfg.Audio.Channels,
		ChunkFrames: a.cfg.Audio.ChunkSize,
	}
}

// ApplyConfig applies the hot-reloadable parts of a config change to the
// running subsystems. The log level is the caller's concern; everything
// config.Diff does not track requires a restart.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.WakeChanged {
		a.detector.Tune(d.NewThreshold, d.NewPhoneticAssist)
		slog.Info("wake detection retuned",
			"threshold", d.NewThreshold,
			"phonetic_assist", d.NewPhoneticAssist)
	}
	if d.PersonaChanged {
		a.chat.SetPersona(d.NewPersona)
		slog.Info("persona changed", "persona", d.NewPersona)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the voice loop and the HTTP API and blocks until ctx is
// cancelled or either of them fails. On a clean shutdown the returned
// error is ctx's error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(ctx)
	})

	g.Go(func() error {
		err := a.serveHTTP()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Drain the HTTP server once the group context falls, so g.Wait does
	// not hang on open connections.
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http shutdown incomplete", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// serveHTTP runs the API server, with TLS when configured.
func (a *App) serveHTTP() error {
	if tls := a.cfg.Server.TLS; tls != nil {
		slog.Info("http api listening", "addr", a.httpSrv.Addr, "tls", true)
		return a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	slog.Info("http api listening", "addr", a.httpSrv.Addr)
	return a.httpSrv.ListenAndServe()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
// Shutdown is safe to call more than once; only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// release frees resources acquired so far when New fails partway. Closer
// errors are logged, not returned, because the init error is the one the
// caller needs.
func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error during init rollback", "err", err)
		}
	}
	a.closers = nil
}
