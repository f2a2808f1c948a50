package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds a limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Bucket names.
const (
	BucketRequest = "request" // sessions started per minute
	BucketBudget  = "budget"  // thinking-token budget requested per hour
	BucketAuth    = "auth"    // authentication attempts per minute
)

// RateLimitConfig bounds what clients may request. Zero disables a bucket.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	BudgetPerHour  int `yaml:"budget_per_hour"`
	AuthPerMin     int `yaml:"auth_per_min"`
}

// RateLimiter is a sliding-window limiter over a fixed set of buckets.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []event
	used   int
}

type event struct {
	at time.Time
	n  int
}

// NewRateLimiter creates a limiter. AuthPerMin defaults to 60.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = 60
	}
	rl := &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			BucketAuth: {window: time.Minute, limit: cfg.AuthPerMin},
		},
	}
	if cfg.RequestsPerMin > 0 {
		rl.buckets[BucketRequest] = &bucket{window: time.Minute, limit: cfg.RequestsPerMin}
	}
	if cfg.BudgetPerHour > 0 {
		rl.buckets[BucketBudget] = &bucket{window: time.Hour, limit: cfg.BudgetPerHour}
	}
	return rl
}

// Allow is AllowN(kind, 1).
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN records n units against kind, or returns ErrRateLimited without
// recording anything. Unknown or disabled buckets always allow.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok || n <= 0 {
		return nil
	}

	now := rl.now()
	b.evict(now)
	if b.used+n > b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, event{at: now, n: n})
	b.used += n
	return nil
}

func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].at.Before(cutoff) {
		b.used -= b.events[i].n
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
