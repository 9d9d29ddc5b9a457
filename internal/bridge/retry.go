package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds automatic retries of transient failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// hintedBackOff stretches the next wait to an upstream Retry-After hint.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = min(h.hint, h.max)
	}
	h.hint = 0
	return next
}

// withRetry runs op until it succeeds, fails permanently, or the policy is
// exhausted. onRetry is called before each wait. The last error is returned.
func withRetry(ctx context.Context, p RetryPolicy, onRetry func(err error, attempt int, wait time.Duration), op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	hinted := &hintedBackOff{BackOff: exp, max: p.MaxBackoff}
	retries := max(p.MaxRetries, 0)
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(retries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		var rl *RateLimitedError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(err, attempt, wait)
		}
	})
}
