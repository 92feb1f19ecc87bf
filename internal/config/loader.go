package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "deepgram", "mock"},
	"tts":        {"piper", "coqui", "elevenlabs", "mock"},
	"llm":        {"groq", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile", "mock"},
	"embeddings": {"openai", "ollama", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, expands
// ${ENV_VAR} references in secret fields, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets substitutes ${ENV_VAR} references in fields that commonly
// carry credentials, so keys can stay out of the config file.
func expandSecrets(cfg *Config) {
	expandEntrySecrets(&cfg.Providers.STT)
	expandEntrySecrets(&cfg.Providers.TTS)
	expandEntrySecrets(&cfg.Providers.LLM)
	expandEntrySecrets(&cfg.Providers.Embeddings)
	cfg.History.PostgresDSN = os.ExpandEnv(cfg.History.PostgresDSN)
}

// expandEntrySecrets expands the entry's API key and those of its fallbacks.
func expandEntrySecrets(entry *ProviderEntry) {
	entry.APIKey = os.ExpandEnv(entry.APIKey)
	for i := range entry.Fallbacks {
		entry.Fallbacks[i].APIKey = os.ExpandEnv(entry.Fallbacks[i].APIKey)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Audio stream format
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.RecordSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.record_seconds %d must be positive", cfg.Audio.RecordSeconds))
	}

	// Capture buffering
	if cfg.Capture.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_capacity %d must be positive", cfg.Capture.QueueCapacity))
	}
	if cfg.Capture.MaxOverflows <= 0 {
		errs = append(errs, fmt.Errorf("capture.max_overflows %d must be positive", cfg.Capture.MaxOverflows))
	}
	if cfg.Capture.DrainTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.drain_timeout_ms %d must be positive", cfg.Capture.DrainTimeoutMs))
	}

	// Wake detection
	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}
	if cfg.Wake.Model == "" {
		errs = append(errs, errors.New("wake.model (streaming model file path) is required"))
	}
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range [0, 1]", cfg.Wake.Threshold))
	}

	// Assistant
	if cfg.Assistant.MaxErrors <= 0 {
		errs = append(errs, fmt.Errorf("assistant.max_errors %d must be positive", cfg.Assistant.MaxErrors))
	}

	// Provider name validation — warn for unknown provider names.
	validateEntryNames("stt", cfg.Providers.STT)
	validateEntryNames("tts", cfg.Providers.TTS)
	validateEntryNames("llm", cfg.Providers.LLM)
	validateEntryNames("embeddings", cfg.Providers.Embeddings)

	// The voice loop needs all three pipeline stages.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.Model == "" {
		errs = append(errs, errors.New("providers.stt.model (model file path) is required for the whisper provider"))
	}

	// History store
	if !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: inmem, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("history.backend is postgres but providers.embeddings is not configured; recall falls back to keyword search")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.History.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("history.embedding_dimensions %d must be positive when embeddings are configured", cfg.History.EmbeddingDimensions))
	}

	return errors.Join(errs...)
}

// validateEntryNames checks the entry's provider name and those of its
// fallbacks against the known-names list.
func validateEntryNames(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
