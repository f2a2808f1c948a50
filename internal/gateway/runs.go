package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/budgetforce/internal/runs"
)

// handleListRuns serves GET /v1/runs?limit=&mode=&status=.
func (g *Gateway) handleListRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Store == nil {
			writeError(w, http.StatusNotFound, "run history disabled")
			return
		}

		q := r.URL.Query()
		opts := runs.ListOptions{
			Mode:   runs.Mode(q.Get("mode")),
			Status: runs.Status(q.Get("status")),
		}
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			opts.Limit = n
		}

		list, err := g.deps.Store.List(r.Context(), opts)
		if err != nil {
			g.logger.Error("gateway: list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if list == nil {
			list = []runs.Summary{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleGetRun serves GET /v1/runs/{id} with the full event trace.
func (g *Gateway) handleGetRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Store == nil {
			writeError(w, http.StatusNotFound, "run history disabled")
			return
		}

		run, err := g.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, runs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			g.logger.Error("gateway: get run", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}
