package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/security"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// ThinkRequest is the body of POST /v1/think and /v1/baseline, and the
// first message of a stream.
type ThinkRequest struct {
	ID    string `json:"id,omitempty"`
	Input string `json:"input"`

	// Budget defaults to the server's configured budget when omitted.
	// Ignored by baseline.
	Budget *int `json:"budget,omitempty"`

	// Trace includes the iteration events in the response.
	Trace bool `json:"trace,omitempty"`
}

// ThinkResponse is the body of a successful think or baseline call.
type ThinkResponse struct {
	RunID  string                `json:"run_id"`
	Mode   runs.Mode             `json:"mode"`
	Status runs.Status           `json:"status"`
	Answer *thinking.FinalAnswer `json:"answer"`
	Events []thinking.Event      `json:"events,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

// decodeThinkRequest validates a think request body and resolves the
// budget.
func (g *Gateway) decodeThinkRequest(data []byte, mode runs.Mode) (driver.Job, bool, error) {
	if err := security.ValidateJSONDepth(data, 0); err != nil {
		return driver.Job{}, false, err
	}
	var req ThinkRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return driver.Job{}, false, fmt.Errorf("invalid request: %w", err)
	}
	if req.Input == "" {
		return driver.Job{}, false, errors.New("input is required")
	}

	budget := g.deps.DefaultBudget
	if req.Budget != nil {
		budget = *req.Budget
	}
	if mode == runs.ModeBaseline {
		budget = 0
	}
	if budget < 0 {
		return driver.Job{}, false, fmt.Errorf("budget must not be negative, got %d", budget)
	}
	if g.config.MaxBudget > 0 && budget > g.config.MaxBudget {
		return driver.Job{}, false, fmt.Errorf("budget %d exceeds server maximum %d", budget, g.config.MaxBudget)
	}

	return driver.Job{
		Mode:    mode,
		Request: thinking.Request{ID: req.ID, Input: req.Input, Budget: budget},
	}, req.Trace, nil
}

// admit applies the request and budget rate limits.
func (g *Gateway) admit(job driver.Job) error {
	if err := g.limiter.Allow(security.BucketRequest); err != nil {
		return err
	}
	return g.limiter.AllowN(security.BucketBudget, job.Request.Budget)
}

func (g *Gateway) handleThink(mode runs.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := security.ReadBody(r.Body, g.config.MaxBodySize)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		job, trace, err := g.decodeThinkRequest(data, mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.admit(job); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		o := g.deps.Executor.Execute(r.Context(), job)
		if o.Err != nil {
			g.logger.Warn("gateway: run failed", "run", o.Run.ID, "mode", mode, "error", o.Err)
			writeJSON(w, statusFor(o.Err), errorResponse{Error: o.Err.Error(), RunID: o.Run.ID})
			return
		}

		resp := ThinkResponse{RunID: o.Run.ID, Mode: o.Run.Mode, Status: o.Run.Status, Answer: o.Answer}
		if trace {
			resp.Events = o.Run.Events
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// statusFor maps a run or request error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, security.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, security.ErrRateLimited), errors.Is(err, engine.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, thinking.ErrInvalidBudget), errors.Is(err, thinking.ErrRender):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrContextLength), errors.Is(err, thinking.ErrThinkingDisabled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrEngineUnavailable), errors.Is(err, driver.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrAuthentication), errors.Is(err, engine.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
