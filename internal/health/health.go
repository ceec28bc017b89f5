// Package health backs the /healthz and /readyz probes of the interview
// server. Liveness is unconditional; readiness runs the named dependency
// probes registered at startup (the archive's database ping, when archiving
// is enabled) and fails when any of them does.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout caps each readiness probe so a hung dependency cannot stall
// the endpoint.
const probeTimeout = 5 * time.Second

// Probe reports a dependency's health; nil means healthy. It must respect
// context cancellation.
type Probe func(ctx context.Context) error

type namedProbe struct {
	name  string
	probe Probe
}

// report is the JSON body served by both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the liveness and readiness endpoints. Register all probes
// before serving; Add is not safe once requests are flowing.
type Handler struct {
	probes []namedProbe
}

// New creates a Handler with no probes. With nothing registered, /readyz
// reports ready as soon as the process serves HTTP.
func New() *Handler {
	return &Handler{}
}

// Add registers a named readiness probe. Probes run in registration order on
// every /readyz request. The name becomes a key in the "checks" response map.
func (h *Handler) Add(name string, probe Probe) {
	h.probes = append(h.probes, namedProbe{name: name, probe: probe})
}

// Healthz is the liveness endpoint. A process that answers it is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every registered probe and returns 200 only when all pass.
// A failing probe yields 503 with the failure text under its check name.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.run(r.Context())

	res := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// run executes the probes, each under its own deadline.
func (h *Handler) run(ctx context.Context) (checks map[string]string, ready bool) {
	checks = make(map[string]string, len(h.probes))
	ready = true

	for _, p := range h.probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.probe(probeCtx)
		cancel()

		if err != nil {
			checks[p.name] = "fail: " + err.Error()
			ready = false
			continue
		}
		checks[p.name] = "ok"
	}
	return checks, ready
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
