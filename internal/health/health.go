// Package health serves the liveness and readiness probes for the Echolot
// server.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz answers
// 200 only when every registered backend check passes — the inference
// provider and the journal store in the production wiring — and reports the
// per-backend detail string otherwise, so a desktop client can tell a
// missing API key from an offline server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one readiness check. Probes against an unreachable
// backend must not hold the probe request open indefinitely.
const checkTimeout = 5 * time.Second

// Checker is one named readiness check. Check returns nil when the backend
// is usable and a classifying error otherwise; it must respect ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// probeResult is the JSON body of both probes.
type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction; the handler itself is stateless and safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers, in order, on each
// readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe. Always 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, probeResult{Status: "ok"})
}

// Readyz is the readiness probe: 200 when every checker passes, 503 with
// per-check details otherwise. Each check runs under its own timeout
// derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := probeResult{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	respond(w, status, res)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, status int, res probeResult) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
