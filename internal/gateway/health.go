package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/budgetforce/internal/engine"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string               `json:"status"` // "ok" or "degraded"
	Engine *engine.HealthStatus `json:"engine,omitempty"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Uptime   time.Duration        `json:"uptime_ns"`
	Workers  int                  `json:"workers"`
	InFlight int                  `json:"in_flight"`
	Engine   *engine.HealthStatus `json:"engine,omitempty"`
}

// handleHealth returns 200 while the engine is available, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.deps.Health != nil {
			st := g.deps.Health.Status()
			resp.Engine = &st
			if !st.Available {
				resp.Status = "degraded"
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second),
			Workers:  g.deps.Executor.Workers(),
			InFlight: g.deps.Executor.InFlight(),
		}
		if g.deps.Health != nil {
			st := g.deps.Health.Status()
			resp.Engine = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
