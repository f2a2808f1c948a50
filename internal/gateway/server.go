package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/budgetforce/internal/runs"
)

func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public.
	r.Get("/health", g.handleHealth())
	if g.deps.Metrics != nil {
		r.Handle("/metrics", g.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.limiter, g.logger))
		}
		r.Get("/status", g.handleStatus())
		r.Post("/think", g.handleThink(runs.ModeThink))
		r.Post("/baseline", g.handleThink(runs.ModeBaseline))
		r.Get("/think/stream", g.handleStream())
		r.Get("/runs", g.handleListRuns())
		r.Get("/runs/{id}", g.handleGetRun())
	})

	return r
}
