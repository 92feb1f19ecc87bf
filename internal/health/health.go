// Package health reports whether the assistant's components are usable.
//
// A single endpoint, /healthz, runs every registered component check and
// returns 200 when all pass or 503 when any fails. The JSON body carries one
// entry per component so a failing probe names the broken part:
//
//	{"status":"fail","checks":{"capture":"ok","llm":"fail: connection refused"}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single component check may take before
// its context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named component check. Check returns nil when the component
// is usable and an error describing the failure otherwise. It must respect
// context cancellation.
type Checker struct {
	// Name labels the component in the JSON response (e.g. "capture",
	// "llm", "history").
	Name string

	Check func(ctx context.Context) error
}

// probe runs the check under its own deadline and renders the outcome as the
// string that lands in the JSON body.
func (c Checker) probe(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := c.Check(ctx); err != nil {
		return "fail: " + err.Error()
	}
	return "ok"
}

// result is the JSON response body for /healthz.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz over a set of component checks. Serving is safe
// for concurrent use once registration is done.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given checks. Checks run sequentially in
// registration order on every request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Add registers another component check. It must not be called once the
// handler is serving.
func (h *Handler) Add(c Checker) {
	h.checkers = append(h.checkers, c)
}

// Healthz runs every registered check and reports 200 when all pass or 503
// when any fails. A handler with no checks reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	res, code := h.evaluate(r.Context())
	writeJSON(w, code, res)
}

// evaluate probes each component in registration order. One failing
// component degrades the whole response.
func (h *Handler) evaluate(ctx context.Context) (result, int) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK

	for _, c := range h.checkers {
		verdict := c.probe(ctx)
		res.Checks[c.Name] = verdict
		if verdict != "ok" {
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		}
	}
	return res, code
}

// Register adds the /healthz route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
}

// writeJSON encodes v and writes it with the given status. Nothing is
// written until v has marshalled; encoding failures produce a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
