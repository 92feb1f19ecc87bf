// Package piper provides a Piper-backed TTS provider that connects to a
// locally running Piper HTTP server. It implements the tts.Provider interface.
//
// Synthesis is performed via POST / with a JSON body; the server responds
// with a RIFF/WAVE file that is decoded into a mono float32 clip at the
// model's native sample rate. The voice catalogue is retrieved from
// GET /voices, which serves the server's voices.json index.
//
// Typical usage:
//
//	p, err := piper.New("http://localhost:5000",
//	    piper.WithVoice("en_US-lessac-medium"),
//	    piper.WithTimeout(15*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, "Hello there.")
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second

	synthesisEndpoint = "/"
	voicesEndpoint    = "/voices"
)

// ---- options ----

// Option is a functional option for configuring a Piper Provider.
type Option func(*Provider)

// WithVoice selects a voice by name (e.g., "en_US-lessac-medium") on servers
// that host more than one model. When unset, the server's default voice is
// used.
func WithVoice(name string) Option {
	return func(p *Provider) {
		p.voice = name
	}
}

// WithLengthScale adjusts the speaking rate. Values above 1.0 slow speech
// down, values below 1.0 speed it up. Zero (default) leaves the model's
// native pacing untouched.
func WithLengthScale(scale float64) Option {
	return func(p *Provider) {
		p.lengthScale = scale
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the Piper
// server. Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a locally-running Piper HTTP
// server. It is safe for concurrent use; multiple Synthesize calls may run
// in parallel.
type Provider struct {
	serverURL   string
	voice       string
	lengthScale float64
	httpClient  *http.Client
}

// New creates a new Piper Provider that targets the HTTP server at serverURL
// (e.g., "http://localhost:5000"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- internal request/response types ----

// synthRequest is the JSON body sent to POST /.
type synthRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty"`
}

// voiceInfo is a single entry in the voices.json index served by GET /voices.
type voiceInfo struct {
	Language struct {
		Code        string `json:"code"`
		NameEnglish string `json:"name_english"`
	} `json:"language"`
	Quality     string `json:"quality"`
	NumSpeakers int    `json:"num_speakers"`
}

// ---- Synthesize ----

// Synthesize sends text to the Piper server and decodes the WAV response into
// a mono clip. Stereo responses are downmixed by averaging. An empty or
// whitespace-only text returns an empty clip without contacting the server.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, nil
	}

	body := synthRequest{
		Text:        text,
		Voice:       p.voice,
		LengthScale: p.lengthScale,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesisEndpoint, bytes.NewReader(data))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: POST %s: %w", synthesisEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("piper: POST %s returned status %d", synthesisEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: read WAV response: %w", err)
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: decode synthesis response: %w", err)
	}
	return clip, nil
}

// ---- Voices ----

// Voices retrieves the voice catalogue from GET /voices. The index maps voice
// names to their metadata; entries are returned sorted by name for
// deterministic output.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("piper: create voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: GET %s: %w", voicesEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: GET %s returned status %d", voicesEndpoint, resp.StatusCode)
	}

	var index map[string]voiceInfo
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("piper: decode voices index: %w", err)
	}

	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		info := index[name]
		meta := map[string]string{}
		if info.Quality != "" {
			meta["quality"] = info.Quality
		}
		if info.NumSpeakers > 1 {
			meta["speakers"] = strconv.Itoa(info.NumSpeakers)
		}
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Language: info.Language.Code,
			Metadata: meta,
		})
	}
	return voices, nil
}
