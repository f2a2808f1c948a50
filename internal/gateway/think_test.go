package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/security"
	"github.com/flemzord/budgetforce/internal/thinking"
)

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestThink_DefaultBudget(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	g := newTestGateway(t, Config{}, Deps{Executor: exec, DefaultBudget: 512})

	rr := post(t, g.Handler(), "/v1/think", `{"input": "2+2?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp ThinkResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "run-1" || resp.Answer == nil || resp.Answer.BoxedAnswer != "4" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Events) != 0 {
		t.Errorf("events included without trace: %d", len(resp.Events))
	}

	job := exec.lastJob(t)
	if job.Mode != runs.ModeThink || job.Request.Budget != 512 || job.Request.Input != "2+2?" {
		t.Errorf("job = %+v", job)
	}
}

func TestThink_ExplicitBudgetAndTrace(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	g := newTestGateway(t, Config{}, Deps{Executor: exec, DefaultBudget: 512})

	rr := post(t, g.Handler(), "/v1/think", `{"input": "x", "budget": 0, "trace": true, "id": "abc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp ThinkResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Events) != 1 {
		t.Errorf("events = %d, want 1", len(resp.Events))
	}
	job := exec.lastJob(t)
	if job.Request.Budget != 0 || job.Request.ID != "abc" {
		t.Errorf("job request = %+v", job.Request)
	}
}

func TestBaseline_IgnoresBudget(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	g := newTestGateway(t, Config{MaxBudget: 100}, Deps{Executor: exec, DefaultBudget: 512})

	rr := post(t, g.Handler(), "/v1/baseline", `{"input": "x", "budget": 99999}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	job := exec.lastJob(t)
	if job.Mode != runs.ModeBaseline || job.Request.Budget != 0 {
		t.Errorf("job = %+v", job)
	}
}

func TestThink_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing input", body: `{"budget": 10}`, want: http.StatusBadRequest},
		{name: "negative budget", body: `{"input": "x", "budget": -1}`, want: http.StatusBadRequest},
		{name: "over max budget", body: `{"input": "x", "budget": 2000}`, want: http.StatusBadRequest},
		{name: "not json", body: `input=x`, want: http.StatusBadRequest},
		{name: "too deep", body: `{"input": [[[[[[[[[["x"]]]]]]]]]]}`, want: http.StatusBadRequest},
		{name: "too large", body: `{"input": "` + strings.Repeat("x", 2048) + `"}`, want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newTestGateway(t, Config{MaxBudget: 1000, MaxBodySize: 1024}, Deps{DefaultBudget: 10})
			if rr := post(t, g.Handler(), "/v1/think", tt.body); rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body)
			}
		})
	}
}

func TestThink_RateLimited(t *testing.T) {
	t.Parallel()

	cfg := Config{RateLimit: security.RateLimitConfig{BudgetPerHour: 1000}}
	g := newTestGateway(t, cfg, Deps{DefaultBudget: 600})

	if rr := post(t, g.Handler(), "/v1/think", `{"input": "a"}`); rr.Code != http.StatusOK {
		t.Fatalf("first status = %d", rr.Code)
	}
	if rr := post(t, g.Handler(), "/v1/think", `{"input": "b"}`); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rr.Code)
	}
	// A smaller budget still fits in the window.
	if rr := post(t, g.Handler(), "/v1/think", `{"input": "c", "budget": 300}`); rr.Code != http.StatusOK {
		t.Errorf("third status = %d, want 200", rr.Code)
	}
}

func TestThink_RunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("call: %w", engine.ErrEngineUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", engine.ErrEngineUnavailable, engine.ErrRateLimit), http.StatusTooManyRequests},
		{engine.ErrContextLength, http.StatusUnprocessableEntity},
		{&thinking.SessionError{Err: thinking.ErrThinkingDisabled}, http.StatusUnprocessableEntity},
		{engine.ErrMalformedResponse, http.StatusBadGateway},
		{&thinking.SessionError{SessionID: "s", Err: thinking.ErrBudgetNeverSatisfied}, http.StatusInternalServerError},
		{fmt.Errorf("%w: bad template", thinking.ErrRender), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{driver.ErrBusy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			exec := &fakeExecutor{ExecuteFunc: func(_ context.Context, job driver.Job) driver.Outcome {
				return driver.Outcome{Job: job, Err: tt.err, Run: runs.Run{ID: "failed-run", Status: runs.StatusFailed}}
			}}
			g := newTestGateway(t, Config{}, Deps{Executor: exec})

			rr := post(t, g.Handler(), "/v1/think", `{"input": "x"}`)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			var resp errorResponse
			_ = json.NewDecoder(rr.Body).Decode(&resp)
			if resp.RunID != "failed-run" || resp.Error == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}
