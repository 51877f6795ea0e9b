package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDoVal_FirstTrySucceeds(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		return "body", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "body" {
		t.Errorf("expected %q, got %q", "body", val)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_RetriesTransientUntilSuccess(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("upstream 503"), 503)
		}
		return 200, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 200 {
		t.Errorf("expected 200, got %d", val)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_PermanentErrorFailsFast(t *testing.T) {
	permanent := errors.New("404 not found")
	var calls int
	_, err := DoVal(context.Background(), fastRetry(5), func(_ context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retries for a permanent error, got %d calls", calls)
	}
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	transient := NewTransientError(errors.New("connection reset"), 0)
	var calls int
	_, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		return 0, transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("expected the last transient error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoVal_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	_, err := DoVal(ctx, fastRetry(5), func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("slow upstream"), 0)
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation stopped retries, got %d", calls)
	}
}

func TestDo_PassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	if err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     350 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 350 * time.Millisecond}, // capped
		{3, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt, cfg); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.25,
	}

	lo := 75 * time.Millisecond
	hi := 125 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := backoff(0, cfg)
		if d < lo || d > hi {
			t.Fatalf("backoff %s outside [%s, %s]", d, lo, hi)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(RetryConfig{})

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected default MaxAttempts 3, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 500*time.Millisecond {
		t.Errorf("expected default InitialBackoff 500ms, got %s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 10*time.Second {
		t.Errorf("expected default MaxBackoff 10s, got %s", cfg.MaxBackoff)
	}
}
