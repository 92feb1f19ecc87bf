// Package coqui speaks to a self-hosted Coqui TTS server and exposes it as
// a tts.Provider.
//
// The provider understands two server flavours, selected via WithAPIMode:
//
//   - APIModeStandard (default) drives the stock Coqui TTS image
//     (ghcr.io/coqui-ai/tts-cpu): GET /api/tts with query parameters for
//     synthesis, GET /details for the voice catalogue.
//
//   - APIModeXTTS drives the XTTS v2 API server: POST /tts_to_audio/ with a
//     JSON body for synthesis, GET /studio_speakers for the catalogue, and
//     POST /clone_speaker for voice cloning.
//
// Pointing at a standard server:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, "Hello there.")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// ---- APIMode ----

// APIMode names the server flavour a Provider talks to.
type APIMode string

const (
	// APIModeXTTS drives the Coqui XTTS v2 API server. Besides synthesis
	// it offers voice listing (/studio_speakers) and cloning
	// (/clone_speaker).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard, the default, drives the standard Coqui TTS server.
	// Voices come from /details; cloning is unavailable.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option configures a Provider during New.
type Option func(*Provider)

// WithLanguage selects the synthesis language by BCP-47 code ("en", "de",
// ...). The provider assumes "en" when unset.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker picks the voice. XTTS mode treats it as the mandatory
// speaker_wav reference; standard mode passes it as speaker_id, which
// single-speaker models leave empty.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithTimeout bounds each HTTP call to the server. 30 s when unset.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode switches between the standard server (default) and the XTTS
// v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// ---- Provider ----

// Provider is a tts.Provider over one Coqui server. Methods are safe for
// concurrent use; parallel Synthesize calls each get their own HTTP request.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
}

// New builds a Provider for the server at serverURL (for instance
// "http://localhost:5002"); the URL must be non-empty. Options adjust the
// language, speaker, timeout and API mode, which otherwise default to "en",
// no speaker, 30 s and APIModeStandard.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- transport helpers ----

// do executes req and treats any status other than 200 as a failure. The
// caller owns the response body on success.
func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

// getJSON fetches serverURL+path and decodes the JSON response into out.
func (p *Provider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coqui: decode %s response: %w", path, err)
	}
	return nil
}

// synthWAV executes a prepared synthesis request and returns the raw WAV
// payload.
func (p *Provider) synthWAV(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read synthesis response: %w", err)
	}
	return wav, nil
}

// ---- Synthesize ----

// ttsRequest is the POST /tts_to_audio/ payload (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize sends text to the Coqui server and decodes the WAV response into
// a mono clip at the model's native sample rate. Stereo responses are
// downmixed by averaging. An empty or whitespace-only text returns an empty
// clip without contacting the server.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, nil
	}
	if p.apiMode == APIModeXTTS && p.speaker == "" {
		return audio.Clip{}, errors.New("coqui: a speaker is required in XTTS mode")
	}

	synth := p.synthesizeStandard
	if p.apiMode == APIModeXTTS {
		synth = p.synthesizeXTTS
	}
	wav, err := synth(ctx, text)
	if err != nil {
		return audio.Clip{}, err
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: decode synthesis response: %w", err)
	}
	return clip, nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) synthesizeXTTS(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: p.speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("coqui: build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.synthWAV(req)
}

// synthesizeStandard performs a single GET /api/tts request (standard server
// mode) with the text and voice selection as URL query parameters.
func (p *Provider) synthesizeStandard(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if p.speaker != "" {
		q.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build synthesis request: %w", err)
	}
	return p.synthWAV(req)
}

// ---- Voices ----

// detailsResponse mirrors GET /details (standard mode). Single-speaker
// models report a nil Speakers slice.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Voices lists what the server can speak with. XTTS mode maps each
// /studio_speakers entry to a Voice; standard mode derives the catalogue
// from /details, one Voice per speaker or a single model-named Voice.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return p.voicesStandard(ctx)
	}
	return p.voicesXTTS(ctx)
}

// voicesXTTS lists the studio speaker catalogue. Only the speaker names
// matter; the embedded vectors in the response are skipped.
func (p *Provider) voicesXTTS(ctx context.Context) ([]tts.Voice, error) {
	var catalogue map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &catalogue); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return voices, nil
}

// voicesStandard maps the /details model info to voices: one per speaker for
// multi-speaker models, a single model-named voice otherwise.
func (p *Provider) voicesStandard(ctx context.Context) ([]tts.Voice, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.Voice{{
			ID:       name,
			Name:     name,
			Language: details.Language,
			Metadata: map[string]string{"type": "single-speaker", "model_name": name},
		}}, nil
	}

	speakers := append([]string(nil), details.Speakers...)
	sort.Strings(speakers)

	voices := make([]tts.Voice, 0, len(speakers))
	for _, spk := range speakers {
		voices = append(voices, tts.Voice{
			ID:       spk,
			Name:     spk,
			Language: details.Language,
			Metadata: map[string]string{"type": "speaker", "model_name": details.ModelName},
		})
	}
	return voices, nil
}

// ---- CloneVoice ----

// cloneSpeakerResponse mirrors the POST /clone_speaker reply.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// CloneVoice registers a new speaker on the XTTS server from one or more
// WAV-encoded samples, uploaded via POST /clone_speaker. It sits outside the
// tts.Provider interface, so callers need a concrete *Provider.
//
// Standard mode has no cloning endpoint; the call then always fails.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return nil, errors.New("coqui: voice cloning is not supported in standard API mode")
	}
	if len(samples) == 0 {
		return nil, errors.New("coqui: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, sample := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err == nil {
			_, err = fw.Write(sample)
		}
		if err != nil {
			return nil, fmt.Errorf("coqui: attach sample %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("coqui: finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("coqui: build clone request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var clone cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&clone); err != nil {
		return nil, fmt.Errorf("coqui: decode clone response: %w", err)
	}
	if clone.Name == "" {
		return nil, errors.New("coqui: clone response carried no speaker name")
	}

	return &tts.Voice{
		ID:       clone.Name,
		Name:     clone.Name,
		Metadata: map[string]string{"type": "cloned"},
	}, nil
}
