// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/budgetforce/internal/cron"
	"github.com/flemzord/budgetforce/internal/engine"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a test double for cron.Pruner.
type MockPruner struct {
	PruneFunc  func(cutoff time.Time) (int, error)
	PruneCalls atomic.Int32
}

var _ cron.Pruner = (*MockPruner)(nil)

// Prune implements cron.Pruner.
func (m *MockPruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.PruneCalls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(cutoff)
	}
	return 0, nil
}

// MockProber is a test double for cron.Prober. ProbeFunc may update
// StatusVal to simulate recovery.
type MockProber struct {
	mu         sync.Mutex
	StatusVal  engine.HealthStatus
	ProbeFunc  func(ctx context.Context) error
	ProbeCalls atomic.Int32
}

var _ cron.Prober = (*MockProber)(nil)

// Probe implements cron.Prober.
func (m *MockProber) Probe(ctx context.Context) error {
	m.ProbeCalls.Add(1)
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return nil
}

// Status implements cron.Prober.
func (m *MockProber) Status() engine.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusVal
}

// SetStatus replaces the reported status.
func (m *MockProber) SetStatus(s engine.HealthStatus) {
	m.mu.Lock()
	m.StatusVal = s
	m.mu.Unlock()
}
