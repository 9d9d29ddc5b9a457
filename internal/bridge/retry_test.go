package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastRetry = RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestWithRetry(t *testing.T) {
	transient := &HTTPStatusError{Service: "svc", Code: 503}
	permanent := &HTTPStatusError{Service: "svc", Code: 400}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first time", wantCalls: 1},
		{name: "recovers after transient failures", errs: []error{transient, transient}, wantCalls: 3},
		{name: "stops on permanent failure", errs: []error{permanent, transient}, wantCalls: 1, wantErr: permanent},
		{name: "gives up after max retries", errs: []error{transient, transient, transient, transient, transient}, wantCalls: 4, wantErr: transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			notified := 0
			err := withRetry(context.Background(), fastRetry, func(error, int, time.Duration) { notified++ }, func(context.Context) error {
				calls++
				if calls <= len(tt.errs) {
					return tt.errs[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("withRetry() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("withRetry() error = %v, want %v", err, tt.wantErr)
			}
			if notified != min(calls-1, fastRetry.MaxRetries) && tt.wantErr != permanent {
				t.Errorf("onRetry called %d times for %d calls", notified, calls)
			}
		})
	}
}

func TestWithRetry_HonorsRetryAfter(t *testing.T) {
	p := RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	var waited time.Duration
	calls := 0
	err := withRetry(context.Background(), p, func(_ error, _ int, wait time.Duration) { waited = wait }, func(context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitedError{Service: "svc", RetryAfter: 50 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if waited < 50*time.Millisecond {
		t.Errorf("wait = %v, want at least the Retry-After hint", waited)
	}
}

func TestWithRetry_RetryAfterCappedByMaxBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	var waited time.Duration
	calls := 0
	withRetry(context.Background(), p, func(_ error, _ int, wait time.Duration) { waited = wait }, func(context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitedError{Service: "svc", RetryAfter: time.Hour}
		}
		return nil
	})
	if waited > 20*time.Millisecond {
		t.Errorf("wait = %v, want at most MaxBackoff", waited)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}
	calls := 0
	err := withRetry(ctx, p, nil, func(context.Context) error {
		calls++
		cancel()
		return &HTTPStatusError{Service: "svc", Code: 500}
	})
	if err == nil {
		t.Fatal("withRetry() expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
