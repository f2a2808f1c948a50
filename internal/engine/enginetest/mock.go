// Package enginetest provides test helpers for the engine package.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/budgetforce/internal/engine"
)

// Call records the arguments of one Generate invocation.
type Call struct {
	Prompt   string
	Sampling engine.Sampling
}

// MockEngine is a configurable test double for engine.Engine.
// Set GenerateFunc to control behavior. An unset GenerateFunc panics on call.
// All methods are safe for concurrent use.
type MockEngine struct {
	GenerateFunc    func(ctx context.Context, prompt string, s engine.Sampling) (engine.Result, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string

	mu          sync.Mutex
	calls       []Call
	healthCalls int
}

// Generate delegates to GenerateFunc and records the call.
func (m *MockEngine) Generate(ctx context.Context, prompt string, s engine.Sampling) (engine.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Prompt: prompt, Sampling: s})
	m.mu.Unlock()
	return m.GenerateFunc(ctx, prompt, s)
}

// ModelName returns Model, or "mock-model" when unset.
func (m *MockEngine) ModelName() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc, or succeeds when unset.
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.healthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Calls returns a copy of the recorded Generate calls.
func (m *MockEngine) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate calls.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// HealthCalls returns the number of HealthCheck calls.
func (m *MockEngine) HealthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCalls
}

// Script returns a GenerateFunc that replays results in order and fails
// once they are exhausted.
func Script(results ...engine.Result) func(context.Context, string, engine.Sampling) (engine.Result, error) {
	var mu sync.Mutex
	idx := 0
	return func(_ context.Context, _ string, _ engine.Sampling) (engine.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(results) {
			return engine.Result{}, fmt.Errorf("enginetest: script exhausted after %d calls", idx)
		}
		r := results[idx]
		idx++
		return r, nil
	}
}

// Interface guards.
var (
	_ engine.Engine        = (*MockEngine)(nil)
	_ engine.HealthChecker = (*MockEngine)(nil)
)
