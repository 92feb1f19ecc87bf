package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/auricle/pkg/provider/embeddings/ollama"
)

// newEmbedServer returns an httptest server answering POST /api/embed with
// the given vector, plus a counter of how many requests it served.
func newEmbedServer(t *testing.T, vector []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(req.Input) == 0 {
			http.Error(w, "no input", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": [][]float32{vector},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := ollama.New("http://localhost:11434", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEmbed(t *testing.T) {
	want := []float32{0.1, -0.2, 0.3}
	srv, hits := newEmbedServer(t, want)

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := p.Embed(context.Background(), "query: hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != len(want) {
		t.Fatalf("len(vec) = %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server handled %d requests, want 1", hits.Load())
	}
}

func TestEmbed_TrailingSlashBaseURL(t *testing.T) {
	srv, _ := newEmbedServer(t, []float32{0.5})

	// A trailing slash on the base URL must not break path construction.
	p, err := ollama.New(srv.URL+"/", "all-minilm")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed with trailing slash base URL: %v", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := ollama.New(srv.URL, "missing-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestEmbed_EmptyEmbeddings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "m",
			"embeddings": [][]float32{},
		})
	}))
	defer srv.Close()

	p, err := ollama.New(srv.URL, "some-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when the response carries no embeddings")
	}
}

func TestEmbed_ContextCancelled(t *testing.T) {
	srv, _ := newEmbedServer(t, []float32{0.1})

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Embed(ctx, "hello"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestDimensions_ExplicitValueWins(t *testing.T) {
	srv, hits := newEmbedServer(t, []float32{0.1})

	p, err := ollama.New(srv.URL, "custom-model", ollama.WithDimensions(512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 512 {
		t.Errorf("Dimensions() = %d, want 512", got)
	}
	if hits.Load() != 0 {
		t.Errorf("server was probed %d times, want 0", hits.Load())
	}
}

func TestDimensions_KnownModelSkipsProbe(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tt := range tests {
		srv, hits := newEmbedServer(t, []float32{0.1})
		p, err := ollama.New(srv.URL, tt.model)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.model, err)
		}
		if got := p.Dimensions(); got != tt.want {
			t.Errorf("Dimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
		if hits.Load() != 0 {
			t.Errorf("model %q: server was probed %d times, want 0", tt.model, hits.Load())
		}
	}
}

func TestDimensions_UnknownModelProbesOnce(t *testing.T) {
	srv, hits := newEmbedServer(t, []float32{0.1, 0.2, 0.3, 0.4})

	p, err := ollama.New(srv.URL, "custom-finetune")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 4 {
		t.Errorf("Dimensions() = %d, want the probed 4", got)
	}

	// Repeated calls reuse the cached probe result.
	_ = p.Dimensions()
	_ = p.Dimensions()
	if hits.Load() != 1 {
		t.Errorf("server was probed %d times, want 1", hits.Load())
	}
}

func TestDimensions_FailedProbeReportsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := ollama.New(srv.URL, "custom-finetune")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 0 {
		t.Errorf("Dimensions() = %d, want 0 after a failed probe", got)
	}
}
