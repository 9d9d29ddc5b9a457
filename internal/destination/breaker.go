package destination

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/metrics"
)

const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = time.Minute
)

// OpenCircuitError is returned while a destination's breaker refuses calls.
type OpenCircuitError struct {
	Destination string
	Err         error
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("destination %s unavailable: %v", e.Destination, e.Err)
}

func (e *OpenCircuitError) Unwrap() error { return e.Err }

// Transient marks the failure as retryable once the breaker half-opens.
func (e *OpenCircuitError) Transient() bool { return true }

// Breaker stops calling a destination after consecutive transient failures.
// Permanent failures (a rejected file, bad metadata) do not count toward tripping.
type Breaker struct {
	next bridge.DestinationAdapter
	cb   *gobreaker.CircuitBreaker[*bridge.UploadResult]
}

// NewBreaker wraps next. Zero failures or timeout use the defaults.
func NewBreaker(next bridge.DestinationAdapter, failures uint32, timeout time.Duration, logger bridge.Logger) *Breaker {
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	name := next.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[*bridge.UploadResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			logger.Warn("destination circuit changed state", "destination", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !bridge.IsRetryable(err)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State reports the breaker's current state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	res, err := b.cb.Execute(func() (*bridge.UploadResult, error) {
		return b.next.Upload(ctx, localPath, meta)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &OpenCircuitError{Destination: b.Name(), Err: err}
	}
	return res, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
