package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// nopHandler is a slog.Handler that discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Default retry values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 0.3
)

// RetryConfig bounds retries of transient engine failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per call, including the
	// first. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the wait before the second attempt. Default: 2s.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the exponential delay. Default: 30s.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Jitter is the +/- fraction applied to each delay. Default: 0.3.
	Jitter float64 `yaml:"jitter"`

	Health HealthConfig `yaml:"health"`
}

// Defaults fills zero-value fields.
func (c *RetryConfig) Defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Jitter <= 0 {
		c.Jitter = DefaultJitter
	}
	c.Health.defaults()
}

// Validate reports configuration problems.
func (c *RetryConfig) Validate() error {
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("engine: retry jitter must be in [0, 1), got %v", c.Jitter)
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("engine: retry base_delay %v exceeds max_delay %v", c.BaseDelay, c.MaxDelay)
	}
	return nil
}

// RetryOption configures a Retrying engine.
type RetryOption func(*Retrying)

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) RetryOption {
	return func(r *Retrying) { r.logger = l }
}

// Retrying wraps an Engine with bounded retry of transient failures and
// health tracking. While the wrapped engine is cooling down or dead, calls
// fail fast with ErrEngineUnavailable.
type Retrying struct {
	next   Engine
	cfg    RetryConfig
	health *healthTracker
	logger *slog.Logger

	// Injectable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewRetrying wraps next.
func NewRetrying(next Engine, cfg RetryConfig, opts ...RetryOption) *Retrying {
	cfg.Defaults()
	r := &Retrying{
		next:   next,
		cfg:    cfg,
		health: newHealthTracker(cfg.Health),
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(nopHandler{})
	}

	model := next.ModelName()
	logger := r.logger
	r.health.onStateChange = func(from, to HealthState) {
		switch to {
		case HealthCooldown:
			logger.Warn("engine entered cooldown",
				"model", model,
				"cooldown", r.health.currentCooldown(),
			)
		case HealthDead:
			logger.Error("engine marked dead", "model", model)
		case HealthHealthy:
			logger.Info("engine revived", "model", model, "previous_state", from.String())
		}
	}
	return r
}

// Generate implements Engine.
func (r *Retrying) Generate(ctx context.Context, prompt string, s Sampling) (Result, error) {
	if !r.health.available() {
		state, _ := r.health.snapshot()
		return Result{}, fmt.Errorf("%w: %s is %s", ErrEngineUnavailable, r.next.ModelName(), state)
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		res, err := r.next.Generate(ctx, prompt, s)
		if err == nil {
			r.health.recordSuccess()
			return res, nil
		}

		// Caller cancellation is not an engine failure.
		if ctx.Err() != nil {
			return Result{}, err
		}
		if !IsRetryable(err) {
			return Result{}, err
		}

		lastErr = err
		r.health.recordFailure()

		if attempt == r.cfg.MaxAttempts {
			break
		}
		delay := r.delay(attempt)
		r.logger.Warn("engine call failed, retrying",
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("engine: %d attempts failed: %w", r.cfg.MaxAttempts, lastErr)
}

// ModelName implements Engine.
func (r *Retrying) ModelName() string {
	return r.next.ModelName()
}

// Probe runs an active health check when the engine is dead or its
// cooldown has expired. A backend without a health check is revived
// optimistically.
func (r *Retrying) Probe(ctx context.Context) error {
	if !r.health.needsProbe() {
		return nil
	}
	checker, ok := r.next.(HealthChecker)
	if !ok {
		r.health.recordSuccess()
		return nil
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return err
	}
	r.health.recordSuccess()
	return nil
}

// Status returns the current health view.
func (r *Retrying) Status() HealthStatus {
	state, failures := r.health.snapshot()
	return HealthStatus{
		Model:     r.next.ModelName(),
		State:     state.String(),
		Available: r.health.available(),
		Failures:  failures,
	}
}

// delay returns the jittered exponential backoff before attempt+1.
func (r *Retrying) delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	d = math.Min(d, float64(r.cfg.MaxDelay))
	// Scale into [1-jitter, 1+jitter).
	d *= 1 + r.cfg.Jitter*(2*r.jitter()-1)
	return time.Duration(math.Round(d))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HealthCheck implements HealthChecker by checking the wrapped engine.
func (r *Retrying) HealthCheck(ctx context.Context) error {
	checker, ok := r.next.(HealthChecker)
	if !ok {
		return nil
	}
	return checker.HealthCheck(ctx)
}

var (
	_ Engine        = (*Retrying)(nil)
	_ HealthChecker = (*Retrying)(nil)
)
