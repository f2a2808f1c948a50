package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// fakeRunner emits one event per call and echoes the input as the answer.
type fakeRunner struct {
	RunFunc func(ctx context.Context, req thinking.Request) (*thinking.FinalAnswer, error)

	baselines atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, req thinking.Request) (*thinking.FinalAnswer, error) {
	if req.Observer != nil {
		req.Observer.Observe(thinking.Event{SessionID: req.ID, Seq: 1, Kind: thinking.EventSessionStart})
	}
	if f.RunFunc != nil {
		return f.RunFunc(ctx, req)
	}
	return &thinking.FinalAnswer{SessionID: req.ID, AnswerSegment: req.Input}, nil
}

func (f *fakeRunner) Baseline(_ context.Context, req thinking.Request) (*thinking.FinalAnswer, error) {
	f.baselines.Add(1)
	return &thinking.FinalAnswer{SessionID: req.ID, ThinkingStop: thinking.StopUnbounded}, nil
}

type answerCounter struct{ n atomic.Int32 }

func (a *answerCounter) RecordAnswer(*thinking.FinalAnswer) { a.n.Add(1) }

func TestExecute_RecordsRun(t *testing.T) {
	t.Parallel()

	store := runs.NewInMemoryStore()
	answers := &answerCounter{}
	d := New(&fakeRunner{}, "m", Config{}, WithStore(store), WithAnswerRecorder(answers))

	o := d.Execute(context.Background(), Job{Request: thinking.Request{Input: "hi", Budget: 5}})
	if o.Err != nil {
		t.Fatalf("Execute error: %v", o.Err)
	}
	if o.Run.ID == "" {
		t.Fatal("run ID should be generated")
	}
	if o.Run.Mode != runs.ModeThink || o.Run.Status != runs.StatusDone || o.Run.Model != "m" {
		t.Errorf("run = %+v", o.Run)
	}
	if len(o.Run.Events) != 1 {
		t.Errorf("events = %d, want 1", len(o.Run.Events))
	}
	if answers.n.Load() != 1 {
		t.Errorf("recorded answers = %d, want 1", answers.n.Load())
	}

	stored, err := store.Get(context.Background(), o.Run.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.Answer == nil || stored.Answer.AnswerSegment != "hi" {
		t.Errorf("stored answer = %+v", stored.Answer)
	}
}

func TestExecute_ForwardsToRequestObserver(t *testing.T) {
	t.Parallel()

	d := New(&fakeRunner{}, "m", Config{})
	outer := &thinking.Recorder{}
	o := d.Execute(context.Background(), Job{Request: thinking.Request{Input: "x", Observer: outer}})
	if len(outer.Events()) != 1 || len(o.Run.Events) != 1 {
		t.Errorf("outer events = %d, run events = %d, want 1 and 1", len(outer.Events()), len(o.Run.Events))
	}
}

func TestExecute_Baseline(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	d := New(r, "m", Config{})
	o := d.Execute(context.Background(), Job{Mode: runs.ModeBaseline, Request: thinking.Request{Input: "x"}})
	if o.Err != nil || r.baselines.Load() != 1 {
		t.Errorf("baseline calls = %d, err = %v", r.baselines.Load(), o.Err)
	}
	if o.Run.Mode != runs.ModeBaseline {
		t.Errorf("Mode = %q", o.Run.Mode)
	}
}

func TestExecute_FailureStored(t *testing.T) {
	t.Parallel()

	store := runs.NewInMemoryStore()
	boom := errors.New("boom")
	d := New(&fakeRunner{RunFunc: func(context.Context, thinking.Request) (*thinking.FinalAnswer, error) {
		return nil, boom
	}}, "m", Config{}, WithStore(store))

	o := d.Execute(context.Background(), Job{Request: thinking.Request{ID: "f1", Input: "x"}})
	if !errors.Is(o.Err, boom) {
		t.Fatalf("Err = %v, want boom", o.Err)
	}
	stored, err := store.Get(context.Background(), "f1")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.Status != runs.StatusFailed || stored.Error != "boom" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestTryExecute_Busy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	d := New(&fakeRunner{RunFunc: func(context.Context, thinking.Request) (*thinking.FinalAnswer, error) {
		close(started)
		<-release
		return &thinking.FinalAnswer{}, nil
	}}, "m", Config{Workers: 1})

	done := make(chan Outcome)
	go func() { done <- d.Execute(context.Background(), Job{Request: thinking.Request{Input: "a"}}) }()
	<-started

	if d.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", d.InFlight())
	}
	o := d.TryExecute(context.Background(), Job{Request: thinking.Request{Input: "b"}})
	if !errors.Is(o.Err, ErrBusy) {
		t.Errorf("TryExecute err = %v, want ErrBusy", o.Err)
	}

	close(release)
	if o := <-done; o.Err != nil {
		t.Errorf("first job err = %v", o.Err)
	}
}

func TestExecute_ContextDoneWhileWaiting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	d := New(&fakeRunner{RunFunc: func(context.Context, thinking.Request) (*thinking.FinalAnswer, error) {
		close(started)
		<-release
		return &thinking.FinalAnswer{}, nil
	}}, "m", Config{Workers: 1})
	defer close(release)

	go d.Execute(context.Background(), Job{})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o := d.Execute(ctx, Job{})
	if !errors.Is(o.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", o.Err)
	}
}

func TestRunAll_OrderAndConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3
	var (
		mu         sync.Mutex
		current    int
		maxCurrent int
	)
	d := New(&fakeRunner{RunFunc: func(_ context.Context, req thinking.Request) (*thinking.FinalAnswer, error) {
		mu.Lock()
		current++
		maxCurrent = max(maxCurrent, current)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return &thinking.FinalAnswer{AnswerSegment: req.Input}, nil
	}}, "m", Config{Workers: workers})

	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = Job{Request: thinking.Request{Input: fmt.Sprint(i)}}
	}

	var finished atomic.Int32
	out := d.RunAll(context.Background(), jobs, func(Outcome) { finished.Add(1) })

	if len(out) != len(jobs) {
		t.Fatalf("outcomes = %d, want %d", len(out), len(jobs))
	}
	for i, o := range out {
		if o.Index != i || o.Answer == nil || o.Answer.AnswerSegment != fmt.Sprint(i) {
			t.Errorf("outcome %d = %+v", i, o)
		}
	}
	if finished.Load() != int32(len(jobs)) {
		t.Errorf("onDone calls = %d, want %d", finished.Load(), len(jobs))
	}
	if maxCurrent > workers {
		t.Errorf("max concurrency = %d, want <= %d", maxCurrent, workers)
	}
}

func TestRunAll_Empty(t *testing.T) {
	t.Parallel()

	d := New(&fakeRunner{}, "m", Config{})
	if out := d.RunAll(context.Background(), nil, nil); len(out) != 0 {
		t.Errorf("RunAll(nil) = %v", out)
	}
}
