// Package driver runs independent controller sessions concurrently. Calls
// within one session stay sequential inside the controller; the driver only
// bounds how many sessions overlap and records each finished run.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// DefaultWorkers is the concurrency limit when none is configured.
const DefaultWorkers = 4

// ErrBusy is returned by TryExecute when every slot is taken.
var ErrBusy = errors.New("driver: all workers busy")

// Runner is the controller surface the driver needs.
type Runner interface {
	Run(ctx context.Context, req thinking.Request) (*thinking.FinalAnswer, error)
	Baseline(ctx context.Context, req thinking.Request) (*thinking.FinalAnswer, error)
}

// AnswerRecorder receives every successful answer.
type AnswerRecorder interface {
	RecordAnswer(fa *thinking.FinalAnswer)
}

// Config bounds driver concurrency.
type Config struct {
	// Workers is the maximum number of concurrent sessions.
	Workers int `yaml:"workers"`
}

// Job is one unit of work.
type Job struct {
	Mode    runs.Mode
	Request thinking.Request
}

// Outcome is the result of one Job.
type Outcome struct {
	Index  int                   `json:"index"`
	Job    Job                   `json:"-"`
	Run    runs.Run              `json:"run"`
	Answer *thinking.FinalAnswer `json:"-"`
	Err    error                 `json:"-"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithStore persists every finished run. Save errors are logged, not
// returned.
func WithStore(s runs.Store) Option {
	return func(d *Driver) { d.store = s }
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithAnswerRecorder sets a sink for finished answers, typically metrics.
func WithAnswerRecorder(r AnswerRecorder) Option {
	return func(d *Driver) { d.answers = r }
}

// Driver bounds concurrent sessions with a slot semaphore.
type Driver struct {
	runner  Runner
	model   string
	slots   chan struct{}
	store   runs.Store
	answers AnswerRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Driver. model labels stored runs.
func New(runner Runner, model string, cfg Config, opts ...Option) *Driver {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	d := &Driver{
		runner: runner,
		model:  model,
		slots:  make(chan struct{}, workers),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// Workers returns the concurrency limit.
func (d *Driver) Workers() int {
	return cap(d.slots)
}

// InFlight returns the number of sessions currently running.
func (d *Driver) InFlight() int {
	return len(d.slots)
}

// Execute runs job once a slot is free, blocking until then or until ctx
// is done.
func (d *Driver) Execute(ctx context.Context, job Job) Outcome {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return d.reject(job, ctx.Err())
	}
	defer func() { <-d.slots }()
	return d.execute(ctx, job)
}

// TryExecute runs job only if a slot is immediately free.
func (d *Driver) TryExecute(ctx context.Context, job Job) Outcome {
	select {
	case d.slots <- struct{}{}:
	default:
		return d.reject(job, ErrBusy)
	}
	defer func() { <-d.slots }()
	return d.execute(ctx, job)
}

func (d *Driver) reject(job Job, err error) Outcome {
	return Outcome{Job: job, Err: err, Run: runs.Run{
		ID:     job.Request.ID,
		Mode:   job.Mode,
		Input:  job.Request.Input,
		Budget: job.Request.Budget,
		Status: runs.StatusFailed,
		Error:  err.Error(),
	}}
}

func (d *Driver) execute(ctx context.Context, job Job) Outcome {
	if job.Request.ID == "" {
		job.Request.ID = uuid.NewString()
	}
	if job.Mode == "" {
		job.Mode = runs.ModeThink
	}

	rec := &thinking.Recorder{}
	req := job.Request
	if req.Observer != nil {
		outer := req.Observer
		req.Observer = thinking.ObserverFunc(func(e thinking.Event) {
			rec.Observe(e)
			outer.Observe(e)
		})
	} else {
		req.Observer = rec
	}

	started := d.now()
	var (
		fa  *thinking.FinalAnswer
		err error
	)
	switch job.Mode {
	case runs.ModeBaseline:
		fa, err = d.runner.Baseline(ctx, req)
	default:
		fa, err = d.runner.Run(ctx, req)
	}

	run := runs.Run{
		ID:         req.ID,
		Mode:       job.Mode,
		Model:      d.model,
		Input:      req.Input,
		Budget:     req.Budget,
		Status:     runs.StatusOf(fa, err),
		Answer:     fa,
		Events:     rec.Events(),
		StartedAt:  started.UTC(),
		FinishedAt: d.now().UTC(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if fa != nil && d.answers != nil {
		d.answers.RecordAnswer(fa)
	}
	d.persist(run)

	return Outcome{Job: job, Run: run, Answer: fa, Err: err}
}

// persist saves run with a context detached from the request so a client
// disconnect does not lose the record.
func (d *Driver) persist(run runs.Run) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.store.Save(ctx, run); err != nil {
		d.logger.Error("failed to save run", "run", run.ID, "error", err)
	}
}

// RunAll executes jobs on a fixed pool of Workers goroutines and returns
// outcomes in input order. onDone, if non-nil, is called as each job
// finishes, from the worker goroutine.
func (d *Driver) RunAll(ctx context.Context, jobs []Job, onDone func(Outcome)) []Outcome {
	out := make([]Outcome, len(jobs))
	inbox := make(chan int)

	var wg sync.WaitGroup
	for range min(d.Workers(), max(len(jobs), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range inbox {
				o := d.Execute(ctx, jobs[i])
				o.Index = i
				out[i] = o
				if onDone != nil {
					onDone(o)
				}
			}
		}()
	}

	for i := range jobs {
		inbox <- i
	}
	close(inbox)
	wg.Wait()
	return out
}
