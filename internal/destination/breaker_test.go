package destination

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"creator-bridge/internal/bridge"
)

// scriptedDestination returns the queued errors in order, then succeeds.
type scriptedDestination struct {
	errs  []error
	calls int
}

func (s *scriptedDestination) Name() string { return "scripted" }

func (s *scriptedDestination) Upload(ctx context.Context, localPath string, meta bridge.UploadMetadata) (*bridge.UploadResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &bridge.UploadResult{ExternalID: meta.RecordID}, nil
}

func retryable() error {
	return &bridge.UploadError{Destination: "scripted", Retryable: true, Err: errors.New("503")}
}

func permanent() error {
	return &bridge.UploadError{Destination: "scripted", Retryable: false, Err: errors.New("400")}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	next := &scriptedDestination{errs: []error{retryable(), retryable(), retryable()}}
	b := NewBreaker(next, 3, time.Hour, bridge.NewNopLogger())

	for i := 0; i < 3; i++ {
		if _, err := b.Upload(context.Background(), "x", testMeta("rec-1")); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	_, err := b.Upload(context.Background(), "x", testMeta("rec-1"))
	var open *OpenCircuitError
	if !errors.As(err, &open) {
		t.Fatalf("error = %v, want *OpenCircuitError", err)
	}
	if open.Destination != "scripted" {
		t.Errorf("Destination = %q", open.Destination)
	}
	if !bridge.IsRetryable(err) {
		t.Error("open circuit should be retryable")
	}
	if next.calls != 3 {
		t.Errorf("underlying calls = %d, want 3", next.calls)
	}
}

func TestBreaker_PermanentFailuresDoNotTrip(t *testing.T) {
	next := &scriptedDestination{errs: []error{permanent(), permanent(), permanent(), permanent()}}
	b := NewBreaker(next, 2, time.Hour, bridge.NewNopLogger())

	for i := 0; i < 4; i++ {
		_, err := b.Upload(context.Background(), "x", testMeta("rec-1"))
		if err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
		var open *OpenCircuitError
		if errors.As(err, &open) {
			t.Fatalf("call %d: circuit opened on permanent failures", i+1)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	next := &scriptedDestination{errs: []error{retryable()}}
	b := NewBreaker(next, 1, 10*time.Millisecond, bridge.NewNopLogger())

	if _, err := b.Upload(context.Background(), "x", testMeta("rec-1")); err == nil {
		t.Fatal("expected first call to fail")
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	res, err := b.Upload(context.Background(), "x", testMeta("rec-1"))
	if err != nil {
		t.Fatalf("half-open call error: %v", err)
	}
	if res.ExternalID != "rec-1" {
		t.Errorf("ExternalID = %q", res.ExternalID)
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	next := &scriptedDestination{}
	b := NewBreaker(next, 0, 0, bridge.NewNopLogger())
	if b.Name() != "scripted" {
		t.Errorf("Name() = %q", b.Name())
	}
	for i := 0; i < DefaultBreakerFailures-1; i++ {
		next.errs = append(next.errs, retryable())
	}
	for i := 0; i < DefaultBreakerFailures-1; i++ {
		b.Upload(context.Background(), "x", testMeta("rec-1"))
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed below the default threshold", b.State())
	}
}
