// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. It implements the stt.Provider
// interface by streaming the whole clip, closing the stream, and
// concatenating the final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// sendChunkBytes is the size of each binary frame sent to Deepgram.
	// Smaller frames start recognition earlier; larger ones reduce overhead.
	sendChunkBytes = 8192
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithEndpoint overrides the Deepgram WebSocket endpoint. Used in tests to
// point the provider at a local fake server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the clip to Deepgram as raw 16-bit PCM, closes the
// stream, and returns the concatenated final transcripts.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", nil
	}

	wsURL, err := p.buildURL(clip.SampleRate)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "transcription done")

	pcm := audio.Float32ToPCM16(clip.Samples)

	// Writer goroutine streams the audio and asks Deepgram to flush.
	// The reader below collects results until the server closes.
	writeErr := make(chan error, 1)
	go func() {
		for off := 0; off < len(pcm); off += sendChunkBytes {
			end := min(off+sendChunkBytes, len(pcm))
			if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	}()

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			// Server closes the connection after the final results; a
			// normal close ends collection.
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			break
		}
		text, final, ok := parseResponse(msg)
		if ok && final && text != "" {
			parts = append(parts, text)
		}
	}

	if err := <-writeErr; err != nil && ctx.Err() == nil && len(parts) == 0 {
		return "", fmt.Errorf("deepgram: send audio: %w", err)
	}

	return strings.Join(parts, " "), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for raw PCM input
// at the given sample rate.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results
// event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse parses a raw Deepgram WebSocket message. Returns the
// transcript text, whether it is final, and whether the message carried a
// usable result at all.
func parseResponse(data []byte) (text string, final bool, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" {
		return "", false, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}
