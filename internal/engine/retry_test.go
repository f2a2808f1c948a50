package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubEngine replays errors, then succeeds with result.
type stubEngine struct {
	mu        sync.Mutex
	errs      []error
	result    Result
	calls     int
	healthErr error
	probes    int
}

func (s *stubEngine) Generate(_ context.Context, _ string, _ Sampling) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return Result{}, err
	}
	return s.result, nil
}

func (s *stubEngine) ModelName() string { return "stub" }

func (s *stubEngine) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return s.healthErr
}

func newTestRetrying(next Engine, cfg RetryConfig) (*Retrying, *[]time.Duration) {
	r := NewRetrying(next, cfg)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	r.jitter = func() float64 { return 0.5 } // neutral: factor 1.0
	return r, &slept
}

func TestRetrying_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{
		errs:   []error{fmt.Errorf("dial: %w", ErrEngineUnavailable), ErrRateLimit},
		result: Result{Text: "ok", StopReason: StopReasonNatural},
	}
	r, slept := newTestRetrying(stub, RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Health:      HealthConfig{MaxFailures: 10},
	})

	res, err := r.Generate(context.Background(), "p", Sampling{MaxTokens: 10})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("Text = %q, want %q", res.Text, "ok")
	}
	if stub.calls != 3 {
		t.Errorf("calls = %d, want 3", stub.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("slept[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
	if st := r.Status(); st.State != "healthy" {
		t.Errorf("state after success = %q, want healthy", st.State)
	}
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{errs: []error{ErrEngineUnavailable, ErrEngineUnavailable, ErrEngineUnavailable}}
	r, _ := newTestRetrying(stub, RetryConfig{MaxAttempts: 2, Health: HealthConfig{MaxFailures: 10}})

	_, err := r.Generate(context.Background(), "p", Sampling{})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineUnavailable", err)
	}
	if stub.calls != 2 {
		t.Errorf("calls = %d, want 2", stub.calls)
	}
}

func TestRetrying_DoesNotRetryMalformed(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{errs: []error{fmt.Errorf("vllm: %w: missing text", ErrMalformedResponse)}}
	r, slept := newTestRetrying(stub, RetryConfig{})

	_, err := r.Generate(context.Background(), "p", Sampling{})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1", stub.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none", *slept)
	}
	if st := r.Status(); st.Failures != 0 {
		t.Errorf("failures = %d, want 0 for non-retryable error", st.Failures)
	}
}

func TestRetrying_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubEngine{errs: []error{context.Canceled}}
	r, _ := newTestRetrying(stub, RetryConfig{})

	_, err := r.Generate(ctx, "p", Sampling{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if st := r.Status(); st.Failures != 0 {
		t.Errorf("failures = %d, want 0 after caller cancellation", st.Failures)
	}
}

func TestRetrying_FailsFastWhenDead(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{errs: []error{ErrEngineUnavailable}}
	r, _ := newTestRetrying(stub, RetryConfig{MaxAttempts: 1, Health: HealthConfig{MaxFailures: 1}})

	if _, err := r.Generate(context.Background(), "p", Sampling{}); err == nil {
		t.Fatal("expected first call to fail")
	}
	if st := r.Status(); st.State != "dead" || st.Available {
		t.Fatalf("status = %+v, want dead and unavailable", st)
	}

	_, err := r.Generate(context.Background(), "p", Sampling{})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineUnavailable", err)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1 (dead engine must not be called)", stub.calls)
	}
}

func TestRetrying_ProbeRevives(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{errs: []error{ErrEngineUnavailable}, result: Result{Text: "back"}}
	r, _ := newTestRetrying(stub, RetryConfig{MaxAttempts: 1, Health: HealthConfig{MaxFailures: 1}})

	_, _ = r.Generate(context.Background(), "p", Sampling{})

	stub.healthErr = errors.New("still down")
	if err := r.Probe(context.Background()); err == nil {
		t.Fatal("expected probe error while engine is down")
	}
	if r.Status().Available {
		t.Fatal("engine should stay unavailable after failed probe")
	}

	stub.healthErr = nil
	if err := r.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !r.Status().Available {
		t.Fatal("engine should be available after successful probe")
	}
	if stub.probes != 2 {
		t.Errorf("probes = %d, want 2", stub.probes)
	}

	res, err := r.Generate(context.Background(), "p", Sampling{})
	if err != nil || res.Text != "back" {
		t.Errorf("Generate = (%q, %v), want (back, nil)", res.Text, err)
	}
}

func TestRetrying_ProbeSkippedWhenHealthy(t *testing.T) {
	t.Parallel()

	stub := &stubEngine{}
	r, _ := newTestRetrying(stub, RetryConfig{})

	if err := r.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if stub.probes != 0 {
		t.Errorf("probes = %d, want 0 for healthy engine", stub.probes)
	}
}

func TestRetrying_DelayBounds(t *testing.T) {
	t.Parallel()

	r := NewRetrying(&stubEngine{}, RetryConfig{BaseDelay: time.Second, MaxDelay: 4 * time.Second, Jitter: 0.3})

	tests := []struct {
		jitter  float64
		attempt int
		want    time.Duration
	}{
		{0.5, 1, time.Second},
		{0.5, 3, 4 * time.Second},
		{0.5, 6, 4 * time.Second},
		{0, 1, 700 * time.Millisecond},
	}
	for _, tt := range tests {
		r.jitter = func() float64 { return tt.jitter }
		if got := r.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) with jitter %v = %v, want %v", tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     RetryConfig
		wantErr bool
	}{
		{"defaults", RetryConfig{}, false},
		{"jitter too large", RetryConfig{Jitter: 1.5}, true},
		{"base above max", RetryConfig{BaseDelay: time.Minute, MaxDelay: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			if cfg.Jitter == 0 {
				cfg.Defaults()
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
