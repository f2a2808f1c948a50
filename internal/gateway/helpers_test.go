package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// fakeExecutor records jobs and answers them with ExecuteFunc, or with an
// echo answer that emits one generate event.
type fakeExecutor struct {
	ExecuteFunc func(ctx context.Context, job driver.Job) driver.Outcome

	mu   sync.Mutex
	jobs []driver.Job
}

func (f *fakeExecutor) Execute(ctx context.Context, job driver.Job) driver.Outcome {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, job)
	}
	e := thinking.Event{SessionID: "run-1", Seq: 1, Kind: thinking.EventGenerate, CumulativeTokens: 7}
	if job.Request.Observer != nil {
		job.Request.Observer.Observe(e)
	}
	fa := &thinking.FinalAnswer{SessionID: "run-1", AnswerSegment: "\\boxed{4}", BoxedAnswer: "4"}
	return driver.Outcome{
		Job:    job,
		Answer: fa,
		Run: runs.Run{
			ID: "run-1", Mode: job.Mode, Status: runs.StatusDone,
			Budget: job.Request.Budget, Answer: fa, Events: []thinking.Event{e},
		},
	}
}

func (f *fakeExecutor) InFlight() int { return 1 }
func (f *fakeExecutor) Workers() int  { return 4 }

func (f *fakeExecutor) lastJob(t *testing.T) driver.Job {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		t.Fatal("no job executed")
	}
	return f.jobs[len(f.jobs)-1]
}

type fakeHealth struct{ status engine.HealthStatus }

func (f fakeHealth) Status() engine.HealthStatus { return f.status }

func newTestGateway(t *testing.T, cfg Config, deps Deps) *Gateway {
	t.Helper()
	if deps.Executor == nil {
		deps.Executor = &fakeExecutor{}
	}
	g, err := New(cfg, deps, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}
