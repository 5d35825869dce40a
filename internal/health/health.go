// Package health serves the liveness, readiness and pug status endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jensholdgaard/assault-pugbot/internal/clock"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
)

// Status represents a health check result.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// PugStatus is the body of the pug status endpoint.
type PugStatus struct {
	Pugs      []match.Snapshot `json:"pugs"`
	Timestamp string           `json:"timestamp"`
}

// Checker defines a named health check function.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Snapshotter reports the state of every running pug.
type Snapshotter interface {
	Snapshots() []match.Snapshot
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	pugs     Snapshotter
	checkers []Checker
	clock    clock.Clock
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk}
}

// SetReady marks the service as ready to receive traffic. pugs is reported
// by the pug status endpoint while ready; it may be nil.
func (h *Handler) SetReady(ready bool, pugs Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
	h.pugs = pugs
}

func (h *Handler) now() string { return h.clock.Now().UTC().Format(time.RFC3339) }

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{Status: "ok", Timestamp: h.now()})
	}
}

// ReadinessHandler returns HTTP 200 if the service is ready and every
// check passes.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		h.mu.RUnlock()

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, Status{Status: "not_ready", Timestamp: h.now()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true
		for _, c := range h.checkers {
			if err := c.Check(ctx); err != nil {
				checks[c.Name] = err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
		}

		status := "ready"
		code := http.StatusOK
		if !allOK {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, Status{Status: status, Checks: checks, Timestamp: h.now()})
	}
}

// PugsHandler lists the state of every pug. Replicas that are not leading
// report an empty list.
func (h *Handler) PugsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		pugs := h.pugs
		h.mu.RUnlock()

		body := PugStatus{Pugs: []match.Snapshot{}, Timestamp: h.now()}
		if pugs != nil {
			body.Pugs = pugs.Snapshots()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
