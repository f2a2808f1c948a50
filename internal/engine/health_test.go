package engine

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func newTestTracker(cfg HealthConfig) (*healthTracker, *fakeClock) {
	h := newHealthTracker(cfg)
	clock := &fakeClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h.now = clock.Now
	return h, clock
}

func TestHealthTracker_StartsHealthy(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{})

	if !h.available() {
		t.Error("new tracker should be available")
	}
	if state, _ := h.snapshot(); state != HealthHealthy {
		t.Errorf("state = %v, want healthy", state)
	}
}

func TestHealthTracker_CooldownDoubles(t *testing.T) {
	t.Parallel()
	h, clock := newTestTracker(HealthConfig{
		CooldownBase: time.Second,
		CooldownMax:  time.Minute,
		MaxFailures:  10,
	})

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		h.recordFailure()
		if h.available() {
			t.Errorf("failure %d: available during cooldown", i)
		}
		if got := h.currentCooldown(); got != want {
			t.Errorf("failure %d: cooldown = %v, want %v", i, got, want)
		}
		clock.Advance(want)
		if !h.available() {
			t.Errorf("failure %d: unavailable at exact expiry", i)
		}
	}
}

func TestHealthTracker_CooldownCapped(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{
		CooldownBase: 4 * time.Second,
		CooldownMax:  5 * time.Second,
		MaxFailures:  10,
	})

	h.recordFailure()
	h.recordFailure()
	if got := h.currentCooldown(); got != 5*time.Second {
		t.Errorf("cooldown = %v, want 5s", got)
	}
}

func TestHealthTracker_DeadAndRevive(t *testing.T) {
	t.Parallel()
	h, clock := newTestTracker(HealthConfig{MaxFailures: 2})

	var transitions []HealthState
	h.onStateChange = func(_, to HealthState) { transitions = append(transitions, to) }

	h.recordFailure()
	h.recordFailure()
	if state, failures := h.snapshot(); state != HealthDead || failures != 2 {
		t.Fatalf("snapshot = (%v, %d), want (dead, 2)", state, failures)
	}

	clock.Advance(time.Hour)
	if h.available() {
		t.Error("dead tracker should stay unavailable")
	}
	if !h.needsProbe() {
		t.Error("dead tracker should need a probe")
	}

	h.recordSuccess()
	if !h.available() {
		t.Error("revived tracker should be available")
	}

	want := []HealthState{HealthCooldown, HealthDead, HealthHealthy}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestHealthState_String(t *testing.T) {
	t.Parallel()

	tests := map[HealthState]string{
		HealthHealthy:   "healthy",
		HealthCooldown:  "cooldown",
		HealthDead:      "dead",
		HealthState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("HealthState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
