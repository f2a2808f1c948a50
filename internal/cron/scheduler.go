package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler executes registered jobs on their cron schedules. A tick is
// skipped while the previous run of the same job is still going.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*entry
	order  []string
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	job  Job
	lock sync.Mutex
}

// Parser accepts standard 5-field expressions and @descriptors.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*entry),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds j. It fails on a duplicate name or an unparseable
// schedule.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if _, err := Parser.Parse(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}
	s.jobs[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron = cron.New(cron.WithParser(Parser))
	for _, name := range s.order {
		e := s.jobs[name]
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(e) }); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// RunNow runs the named job immediately, outside its schedule. It returns
// false if the job is unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.tick(e)
}

func (s *Scheduler) tick(e *entry) bool {
	name := e.job.Name()
	if !e.lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return false
	}
	defer e.lock.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	if err := e.job.Run(s.ctx); err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name)
	}
	return true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
