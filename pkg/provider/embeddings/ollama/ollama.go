// Package ollama implements an embeddings provider on a local Ollama server
// (https://ollama.com). It talks to Ollama's native /api/embed endpoint and
// works with any embedding model the server has pulled, for example
// nomic-embed-text, mxbai-embed-large or all-minilm.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	vec, err := p.Embed(ctx, "query: where did we leave off?")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/auricle/pkg/provider/embeddings"
)

// DefaultBaseURL targets an Ollama instance on the local machine.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// Provider computes embedding vectors through an Ollama server.
//
// The vector length reported by Dimensions is resolved in this order: an
// explicit [WithDimensions] value, the built-in table of known models, and
// finally a one-off probe request whose result is cached for the lifetime of
// the Provider.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dimensions int
	probeDims  func() int // issues the probe at most once
}

// settings collects the optional knobs applied by Option values.
type settings struct {
	timeout    time.Duration
	dimensions int
}

// Option configures a Provider.
type Option func(*settings)

// WithTimeout bounds each embedding request to d. Zero or negative leaves the
// client without a timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDimensions fixes the reported vector length up front, skipping both the
// model table and the probe request for unknown models.
func WithDimensions(dims int) Option {
	return func(s *settings) { s.dimensions = dims }
}

// New creates a Provider for the given Ollama model. An empty baseURL selects
// [DefaultBaseURL]; a trailing slash is stripped. The model name is required.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	client := &http.Client{}
	if s.timeout > 0 {
		client.Timeout = s.timeout
	}

	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: client,
		dimensions: s.dimensions,
	}
	if p.dimensions == 0 {
		p.dimensions = lookupDims(model)
	}
	p.probeDims = sync.OnceValue(func() int {
		vec, err := p.postEmbed(context.Background(), "probe")
		if err != nil {
			return 0
		}
		return len(vec)
	})
	return p, nil
}

// apiRequest is the JSON body for POST /api/embed.
type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// apiResponse is the JSON body Ollama returns from /api/embed.
type apiResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for text. The text is forwarded
// verbatim; any model-specific prefix such as the "query: " marker expected
// by nomic-embed-text is the caller's responsibility.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.postEmbed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vec, nil
}

// Dimensions returns the vector length this provider produces. When neither
// an explicit value nor the model table resolved it, a single probe request
// is issued against the live server; a failed probe reports 0.
func (p *Provider) Dimensions() int {
	if p.dimensions != 0 {
		return p.dimensions
	}
	return p.probeDims()
}

// postEmbed sends one POST /api/embed request and returns the first vector of
// the response. Errors come back unprefixed so callers can add their own
// context.
func (p *Provider) postEmbed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(apiRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post /api/embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(decoded.Embeddings) == 0 {
		return nil, errors.New("response carried no embeddings")
	}
	return decoded.Embeddings[0], nil
}

// knownDims maps well-known Ollama embedding models to their output width.
var knownDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// lookupDims resolves the vector width for recognised model names, matching
// by substring so tagged names ("nomic-embed-text:latest") resolve too.
// Unknown models return 0 and are probed on the first Dimensions call.
func lookupDims(model string) int {
	lower := strings.ToLower(model)
	for name, dims := range knownDims {
		if strings.Contains(lower, name) {
			return dims
		}
	}
	return 0
}
