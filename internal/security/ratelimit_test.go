package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_RequestBucket(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 3})
	for i := range 3 {
		if err := rl.Allow(BucketRequest); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}
	if err := rl.Allow(BucketRequest); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(BucketRequest)
	_ = rl.Allow(BucketRequest)
	if err := rl.Allow(BucketRequest); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(BucketRequest); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_BudgetBucket(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{BudgetPerHour: 10000})
	rl.now = func() time.Time { return now }

	if err := rl.AllowN(BucketBudget, 8000); err != nil {
		t.Fatalf("AllowN(8000): %v", err)
	}
	// Rejected requests consume nothing.
	if err := rl.AllowN(BucketBudget, 4000); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("AllowN(4000) = %v, want ErrRateLimited", err)
	}
	if err := rl.AllowN(BucketBudget, 2000); err != nil {
		t.Fatalf("AllowN(2000): %v", err)
	}

	now = now.Add(time.Hour + time.Second)
	if err := rl.AllowN(BucketBudget, 10000); err != nil {
		t.Fatalf("AllowN after window: %v", err)
	}
}

func TestRateLimiter_DisabledBuckets(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow(BucketRequest); err != nil {
			t.Fatalf("disabled request bucket limited: %v", err)
		}
	}
	if err := rl.AllowN(BucketBudget, 1<<30); err != nil {
		t.Fatalf("disabled budget bucket limited: %v", err)
	}
	if err := rl.Allow("unknown"); err != nil {
		t.Fatalf("unknown bucket limited: %v", err)
	}
}

func TestRateLimiter_AuthDefault(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for i := range 60 {
		if err := rl.Allow(BucketAuth); err != nil {
			t.Fatalf("Allow(auth) %d: %v", i, err)
		}
	}
	if err := rl.Allow(BucketAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("61st auth attempt = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(BucketRequest) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
