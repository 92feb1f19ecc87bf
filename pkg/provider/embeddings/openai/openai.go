// Package openai implements an embeddings provider on the OpenAI embeddings
// API. The vectors it produces feed semantic recall in the conversation
// store.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/auricle/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model name.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// defaultDimensions is assumed for models missing from the dimension table.
const defaultDimensions = 1536

var _ embeddings.Provider = (*Provider)(nil)

// Provider computes embedding vectors through the OpenAI API.
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
}

// settings collects the optional knobs applied by Option values.
type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
	dimensions   int
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible endpoint other than
// api.openai.com.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization attaches the OpenAI organization ID to every request.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each embedding request to d.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDimensions fixes the reported vector length instead of resolving it
// from the model name. Use it for models the built-in table does not know.
func WithDimensions(dims int) Option {
	return func(s *settings) { s.dimensions = dims }
}

// New creates a Provider for the given model. An empty model selects
// [DefaultModel]. The API key is required.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		clientOpts = append(clientOpts, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		clientOpts = append(clientOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	dims := s.dimensions
	if dims <= 0 {
		dims = modelDimensions(model)
	}

	return &Provider{
		client:     oai.NewClient(clientOpts...),
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed returns the embedding vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: response carried no embedding")
	}

	vec := resp.Data[0].Embedding
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

// Dimensions returns the vector length this provider produces. The value is
// fixed at construction time.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// modelDims maps known OpenAI embedding models to their output width.
var modelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// modelDimensions resolves the vector width for model. Matching is by
// substring so prefixed names ("openai/text-embedding-3-small") resolve too.
func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	for name, dims := range modelDims {
		if strings.Contains(lower, name) {
			return dims
		}
	}
	return defaultDimensions
}
