package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a single probe evaluation.
const DefaultCheckTimeout = 2 * time.Second

// Status is the JSON body of the health endpoints.
type Status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Handler answers 200 with {"status": okStatus} while p passes, and 503 with
// the failure reason otherwise. A nil probe always passes.
func Handler(p Probe, okStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := http.StatusOK, Status{Status: okStatus}
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), DefaultCheckTimeout)
			err := p.Check(ctx)
			cancel()
			if err != nil {
				code, body = http.StatusServiceUnavailable, Status{Status: "unavailable", Reason: err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// HealthzHandler serves liveness.
func HealthzHandler(p Probe) http.HandlerFunc { return Handler(p, "ok") }

// ReadyzHandler serves readiness.
func ReadyzHandler(p Probe) http.HandlerFunc { return Handler(p, "ready") }
