// Command auricle is the main entry point for the auricle voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/auricle/internal/app"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/resilience"
	"github.com/MrWong99/auricle/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/auricle/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/auricle/pkg/provider/embeddings/openai"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/auricle/pkg/provider/llm/openai"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/stt/deepgram"
	"github.com/MrWong99/auricle/pkg/provider/stt/whisper"
	"github.com/MrWong99/auricle/pkg/provider/tts"
	"github.com/MrWong99/auricle/pkg/provider/tts/coqui"
	"github.com/MrWong99/auricle/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/auricle/pkg/provider/tts/piper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("provider construction failed", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("application init failed", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Log level, wake tuning and persona apply in place; everything else
	// needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if !d.Any() {
			slog.Info("config changed, restart required to apply")
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders lists, per category, every implementation this binary
// ships with. Only consulted for the startup debug log.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "deepgram"},
	"tts":        {"piper", "coqui", "elevenlabs"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders fills reg with a factory per built-in provider.
// A factory translates one config.ProviderEntry into a live provider from
// the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai goes through the dedicated client; anthropic, gemini, deepseek,
	// mistral, groq, llamacpp and llamafile all share the any-llm pattern:
	// optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := strOption(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama runs locally and takes no API key; BaseURL carries the address.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = strOption(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := strOption(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := strOption(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if voice := strOption(entry.Options, "voice"); voice != "" {
			opts = append(opts, piper.WithVoice(voice))
		}
		if scale := floatOption(entry.Options, "length_scale"); scale > 0 {
			opts = append(opts, piper.WithLengthScale(scale))
		}
		return piper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := strOption(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := strOption(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := strOption(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voiceID := strOption(entry.Options, "voice_id"); voiceID != "" {
			opts = append(opts, elevenlabs.WithVoiceID(voiceID))
		}
		if outputFmt := strOption(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := intOption(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := intOption(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// Announce the catalogue at debug level.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders turns the provider section of cfg into live instances for
// the application. Naming an unregistered provider skips that slot with a
// warning so a config written for a newer build still boots; any other
// constructor error aborts startup. Entries that list fallbacks are wrapped
// in a circuit-breaker failover chain.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	llmP, err := makeProvider("llm", cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLM = llmP
	if llmP != nil && len(cfg.Providers.LLM.Fallbacks) > 0 {
		chain := resilience.NewLLMFallback(llmP, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		if err := addFallbacks("llm", cfg.Providers.LLM, chain.AddFallback, reg.CreateLLM); err != nil {
			return nil, err
		}
		ps.LLM = chain
	}

	sttP, err := makeProvider("stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	ps.STT = sttP
	if sttP != nil && len(cfg.Providers.STT.Fallbacks) > 0 {
		chain := resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		if err := addFallbacks("stt", cfg.Providers.STT, chain.AddFallback, reg.CreateSTT); err != nil {
			return nil, err
		}
		ps.STT = chain
	}

	ttsP, err := makeProvider("tts", cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	ps.TTS = ttsP
	if ttsP != nil && len(cfg.Providers.TTS.Fallbacks) > 0 {
		chain := resilience.NewTTSFallback(ttsP, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		if err := addFallbacks("tts", cfg.Providers.TTS, chain.AddFallback, reg.CreateTTS); err != nil {
			return nil, err
		}
		ps.TTS = chain
	}

	ps.Embeddings, err = makeProvider("embeddings", cfg.Providers.Embeddings, reg.CreateEmbeddings)
	if err != nil {
		return nil, err
	}
	if n := len(cfg.Providers.Embeddings.Fallbacks); n > 0 {
		slog.Warn("embeddings fallbacks are not supported, ignoring", "count", n)
	}

	return ps, nil
}

// makeProvider builds the provider named in entry through create. A blank
// entry or an unregistered name yields nil without error; the latter is
// logged so a typo in the config stays visible.
func makeProvider[P any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (P, error)) (P, error) {
	var zero P
	if entry.Name == "" {
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("no such provider, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// addFallbacks builds every fallback listed in entry and hands it to add,
// which registers it on the failover chain. Nested fallback lists are
// ignored.
func addFallbacks[P any](kind string, entry config.ProviderEntry, add func(string, P), create func(config.ProviderEntry) (P, error)) error {
	for _, fb := range entry.Fallbacks {
		p, err := create(fb)
		if err != nil {
			return fmt.Errorf("create %s fallback %q: %w", kind, fb.Name, err)
		}
		add(fb.Name, p)
		slog.Info("fallback registered", "kind", kind, "name", fb.Name)
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Auricle — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  Wake phrase     : %-19s ║\n", cfg.Wake.Phrase)
	fmt.Printf("║  Persona         : %-19s ║\n", cfg.Assistant.Persona)
	fmt.Printf("║  History backend : %-19s ║\n", cfg.History.Backend)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	switch {
	case name == "":
		value = "(not configured)"
	case model != "":
		value = name + " / " + model
	}
	// The box column is 19 runes wide; longer values get an ellipsis.
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar lets a config
// reload change the level without swapping the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// strOption reads a string from a provider's free-form Options map. A nil
// map, a missing key or a non-string value all read as "".
func strOption(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// floatOption reads a number from a provider's Options map. YAML decodes
// whole numbers as int, so both arrive here; anything else reads as 0.
func floatOption(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// intOption is floatOption for integer-valued knobs.
func intOption(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
