package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

var (
	// ErrNotFound is returned when a record, connection or upstream post does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotInErrorState rejects a retry for a record whose status is not error.
	ErrNotInErrorState = errors.New("NOT_IN_ERROR_STATE")

	// ErrWorkerLost fails a record whose claim outlived the engine lease.
	ErrWorkerLost = errors.New("worker lost")

	// ErrDuplicate signals a (user, platform, source post) collision in the store.
	ErrDuplicate = errors.New("record already exists")

	// ErrInFlight rejects changes to a record a worker currently owns.
	ErrInFlight = errors.New("record is being synced")

	// ErrConnectionUnavailable marks an inactive, expired or missing platform connection.
	ErrConnectionUnavailable = errors.New("platform connection unavailable")

	// ErrCredentialsLocked means connection tokens were needed but no key was unlocked.
	ErrCredentialsLocked = errors.New("connection credentials are locked")

	// ErrUnknownDestination names a destination that is not configured.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrInvalidMedia marks downloaded content that is not a usable video.
	ErrInvalidMedia = errors.New("invalid media")
)

// RateLimitedError is returned when an upstream API throttles the caller.
type RateLimitedError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Service)
}

// HTTPStatusError is an unexpected HTTP status from an upstream service.
type HTTPStatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.Code, e.Body)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Code)
}

// UploadError is returned by destination adapters.
type UploadError struct {
	Destination string
	Retryable   bool
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s: %v", e.Destination, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PermanentError wraps an error that must not be retried automatically.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// transientMarker is implemented by errors from outside this package that know
// they are retryable, such as an open circuit breaker.
type transientMarker interface {
	Transient() bool
}

// IsRetryable classifies err as transient (timeouts, throttling, upstream 5xx,
// dropped connections) or permanent (everything else).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}

	var upload *UploadError
	if errors.As(err, &upload) {
		return upload.Retryable
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}

	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusRequestTimeout || se.Code == http.StatusTooManyRequests
	}

	var tm transientMarker
	if errors.As(err, &tm) {
		return tm.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return isConnectionDrop(err)
}

// isConnectionDrop reports a connection refused, reset or cut short by the peer.
func isConnectionDrop(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// net/http reports a server that hangs up before responding as a bare EOF.
	var ue *url.Error
	return errors.As(err, &ue) && errors.Is(ue.Err, io.EOF)
}

// ClassifyHTTPStatus maps a non-2xx status into the error taxonomy.
func ClassifyHTTPStatus(service string, code int, body string, retryAfter time.Duration) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &RateLimitedError{Service: service, RetryAfter: retryAfter}
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", service, ErrNotFound)
	default:
		return &HTTPStatusError{Service: service, Code: code, Body: body}
	}
}
