package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) (int, error) { return 0, errors.New("worker down") }

func succeeding(_ context.Context) (int, error) { return 7, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfigFrom(3, 30))

	v, err := Guard(context.Background(), b, succeeding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfigFrom(2, 60))

	for i := 0; i < 2; i++ {
		_, _ = Guard(context.Background(), b, failing)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("fn must not run while open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfigFrom(3, 60))

	_, _ = Guard(context.Background(), b, failing)
	_, _ = Guard(context.Background(), b, failing)
	if b.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", b.Failures())
	}

	_, _ = Guard(context.Background(), b, succeeding)
	if b.Failures() != 0 {
		t.Errorf("expected failures reset, got %d", b.Failures())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cfg := BreakerConfigFrom(1, 10)
	cfg.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	b := NewBreaker(cfg)
	b.nowFunc = func() time.Time { return now }

	_, _ = Guard(context.Background(), b, failing)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", b.State())
	}

	// A failed probe reopens immediately.
	_, _ = Guard(context.Background(), b, failing)
	if b.State() != Open {
		t.Fatalf("expected reopened, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if _, err := Guard(context.Background(), b, succeeding); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after probe, got %s", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfigFrom(1, 10))
	b.nowFunc = func() time.Time { return now }

	_, _ = Guard(context.Background(), b, failing)
	now = now.Add(11 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	for i := 0; i < 3; i++ {
		_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
			t.Error("only the probe may run while half-open")
			return 0, nil
		})
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen while probe in flight, got %v", err)
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after probe, got %s", b.State())
	}
	if _, err := Guard(context.Background(), b, succeeding); err != nil {
		t.Errorf("closed circuit must admit calls, got %v", err)
	}
}

func TestBreaker_FailedProbeReleasesSlot(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfigFrom(1, 10))
	b.nowFunc = func() time.Time { return now }

	_, _ = Guard(context.Background(), b, failing)
	now = now.Add(11 * time.Second)
	_, _ = Guard(context.Background(), b, failing)

	now = now.Add(11 * time.Second)
	if _, err := Guard(context.Background(), b, succeeding); err != nil {
		t.Errorf("next probe after timeout must run, got %v", err)
	}
}

func TestBreaker_ShouldTripFilters(t *testing.T) {
	cfg := BreakerConfigFrom(1, 60)
	cfg.ShouldTrip = IsTransient
	b := NewBreaker(cfg)

	_, _ = Guard(context.Background(), b, failing)
	if b.State() != Closed {
		t.Errorf("non-transient error must not trip, got %s", b.State())
	}

	_, _ = Guard(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, Transient(errors.New("503"), 503)
	})
	if b.State() != Open {
		t.Errorf("transient error must trip, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfigFrom(1, 60))
	_, _ = Guard(context.Background(), b, failing)
	b.Reset()
	if b.State() != Closed || b.Failures() != 0 {
		t.Errorf("expected closed with no failures, got %s/%d", b.State(), b.Failures())
	}
}

func TestBreakerConfigFrom_Defaults(t *testing.T) {
	cfg := BreakerConfigFrom(0, -1)
	if cfg.FailureThreshold != 3 {
		t.Errorf("expected threshold 3, got %d", cfg.FailureThreshold)
	}
	if cfg.ResetTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.ResetTimeout)
	}
}

func TestState_String(t *testing.T) {
	if State(42).String() != "unknown" {
		t.Errorf("expected unknown, got %s", State(42))
	}
}
