package engine

import (
	"sync"
	"time"
)

// HealthState is the availability state of an engine.
type HealthState int

// HealthState values.
const (
	HealthHealthy  HealthState = iota
	HealthCooldown             // transient failure, backing off
	HealthDead                 // too many consecutive failures
)

// String returns a human-readable label for the state.
func (s HealthState) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthCooldown:
		return "cooldown"
	case HealthDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls cooldown behavior after failed calls.
type HealthConfig struct {
	// CooldownBase is the cooldown after the first failed call. Default: 1s.
	CooldownBase time.Duration `yaml:"cooldown_base"`

	// CooldownMax caps the exponential cooldown. Default: 60s.
	CooldownMax time.Duration `yaml:"cooldown_max"`

	// MaxFailures is the number of consecutive failed calls before the
	// engine is marked dead. Default: 5.
	MaxFailures int `yaml:"max_failures"`
}

func (c *HealthConfig) defaults() {
	if c.CooldownBase <= 0 {
		c.CooldownBase = time.Second
	}
	if c.CooldownMax <= 0 {
		c.CooldownMax = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// HealthStatus is a point-in-time view of an engine's health.
type HealthStatus struct {
	Model     string `json:"model"`
	State     string `json:"state"`
	Available bool   `json:"available"`
	Failures  int    `json:"failures"`
}

// healthTracker applies exponential cooldown on failures and marks the
// engine dead after MaxFailures consecutive failures.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange runs outside the lock on every transition.
	onStateChange func(from, to HealthState)

	mu              sync.Mutex
	state           HealthState
	failures        int
	cooldown        time.Duration
	cooldownExpires time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:   cfg,
		state: HealthHealthy,
		now:   time.Now,
	}
}

// available reports whether calls may be attempted. A cooldown ends once
// its expiry is reached.
func (h *healthTracker) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case HealthHealthy:
		return true
	case HealthCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = HealthHealthy
	h.failures = 0
	h.cooldown = 0
	h.mu.Unlock()

	if prev != HealthHealthy && h.onStateChange != nil {
		h.onStateChange(prev, HealthHealthy)
	}
}

func (h *healthTracker) recordFailure() {
	h.mu.Lock()
	prev := h.state
	h.failures++

	next := HealthCooldown
	if h.failures >= h.cfg.MaxFailures {
		next = HealthDead
	} else {
		if h.cooldown == 0 {
			h.cooldown = h.cfg.CooldownBase
		} else {
			h.cooldown *= 2
		}
		h.cooldown = min(h.cooldown, h.cfg.CooldownMax)
		h.cooldownExpires = h.now().Add(h.cooldown)
	}
	h.state = next
	h.mu.Unlock()

	if prev != next && h.onStateChange != nil {
		h.onStateChange(prev, next)
	}
}

// needsProbe reports whether an active health check should run: the
// engine is dead, or its cooldown has expired.
func (h *healthTracker) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case HealthDead:
		return true
	case HealthCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

func (h *healthTracker) snapshot() (HealthState, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures
}

func (h *healthTracker) currentCooldown() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cooldown
}
