// Package web exposes the assistant over a JSON HTTP API.
//
// The API mirrors the voice loop for clients that type instead of speak:
// POST /ask runs one exchange through the same chat service, and the
// remaining routes manage memory slots, history, recall, and speech
// synthesis. /healthz and /metrics mount on the same mux so a single
// listener serves the whole surface.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/health"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/history"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// emptyMessageLine answers an /ask request whose message is blank, matching
// the spoken clarification the voice loop gives for an inaudible command.
const emptyMessageLine = "I didn't hear anything."

// defaultRecallLimit caps /recall results when the request names no k.
const defaultRecallLimit = 3

// Responder produces the assistant's reply to a typed message.
type Responder interface {
	Ask(ctx context.Context, input string) (string, error)
}

// Config holds the collaborators for a [Server]. Responder, Store, and TTS
// are required.
type Config struct {
	Responder Responder
	Store     history.Store
	TTS       tts.Provider

	// Health, when set, mounts /healthz on the server's mux.
	Health *health.Handler

	// Metrics records request durations. Defaults to the process-wide
	// instruments.
	Metrics *observe.Metrics

	// RecallLimit is the result cap for /recall requests that name no k.
	// Defaults to 3.
	RecallLimit int
}

// Server bundles the HTTP handlers of the assistant's API. Build the
// routing with [Server.Handler]; the http.Server that listens belongs to
// the caller.
type Server struct {
	responder   Responder
	store       history.Store
	tts         tts.Provider
	health      *health.Handler
	metrics     *observe.Metrics
	recallLimit int
}

// New validates cfg and creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Responder == nil {
		return nil, errors.New("web: Responder must not be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("web: Store must not be nil")
	}
	if cfg.TTS == nil {
		return nil, errors.New("web: TTS must not be nil")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = defaultRecallLimit
	}

	return &Server{
		responder:   cfg.Responder,
		store:       cfg.Store,
		tts:         cfg.TTS,
		health:      cfg.Health,
		metrics:     cfg.Metrics,
		recallLimit: cfg.RecallLimit,
	}, nil
}

// Handler builds the full request surface: the JSON API plus /healthz and
// /metrics, wrapped in the tracing and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /memories", s.handleSetMemory)
	mux.HandleFunc("GET /memories", s.handleMemories)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /recall", s.handleRecall)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("POST /synthesize", s.handleSynthesize)

	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", observe.MetricsHandler())

	return observe.Middleware(s.metrics)(mux)
}

// ─── Request/response bodies ─────────────────────────────────────────────────

type askRequest struct {
	Message string `json:"message"`
}

type askResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type memoryRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type exchangeResponse struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	CreatedAt time.Time `json:"created_at"`
}

type voiceResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Language string            `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, askResponse{Response: emptyMessageLine})
		return
	}

	reply, err := s.responder.Ask(r.Context(), message)
	if err != nil {
		slog.Error("web: ask failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "assistant unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Response: reply})
}

func (s *Server) handleSetMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing key"})
		return
	}

	if err := s.store.SetSlot(r.Context(), key, req.Value); err != nil {
		if errors.Is(err, history.ErrUnknownSlot) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		slog.Error("web: set memory slot", "slot", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store memory"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	slots, err := s.store.Slots(r.Context())
	if err != nil {
		slog.Error("web: load memory slots", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "load memories"})
		return
	}
	if slots == nil {
		slots = map[string]string{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearHistory(r.Context()); err != nil {
		slog.Error("web: clear history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "clear history"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid n"})
			return
		}
		n = v
	}

	exchanges, err := s.store.Recent(r.Context(), n)
	if err != nil {
		slog.Error("web: load history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "load history"})
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponses(exchanges))
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return
	}

	k := s.recallLimit
	if raw := r.URL.Query().Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid k"})
			return
		}
		k = v
	}

	exchanges, err := s.store.Recall(r.Context(), query, k)
	if err != nil {
		slog.Error("web: recall", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "recall"})
		return
	}
	writeJSON(w, http.StatusOK, toExchangeResponses(exchanges))
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.tts.Voices(r.Context())
	if err != nil {
		slog.Error("web: list voices", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "voice catalogue unavailable"})
		return
	}

	out := make([]voiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceResponse{
			ID:       v.ID,
			Name:     v.Name,
			Language: v.Language,
			Metadata: v.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing text"})
		return
	}

	clip, err := s.tts.Synthesize(r.Context(), text)
	if err != nil {
		slog.Error("web: synthesize", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "synthesis failed"})
		return
	}
	if clip.Empty() {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "synthesis produced no audio"})
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.EncodeWAV(clip)); err != nil {
		slog.Warn("web: write wav response", "error", err)
	}
}

// toExchangeResponses maps store exchanges onto the wire shape, yielding an
// empty array rather than null for no results.
func toExchangeResponses(exchanges []history.Exchange) []exchangeResponse {
	out := make([]exchangeResponse, 0, len(exchanges))
	for _, ex := range exchanges {
		out = append(out, exchangeResponse{
			User:      ex.User,
			Assistant: ex.Assistant,
			CreatedAt: ex.CreatedAt,
		})
	}
	return out
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
