// Package resilience guards calls to the remote compute worker with a circuit
// breaker and bounded retries.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the state of a Breaker.
type State int

const (
	// Closed lets requests through.
	Closed State = iota
	// Open rejects requests until the reset timeout elapses.
	Open
	// HalfOpen lets a probe through to test whether the worker recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = eris.New("resilience: worker circuit is open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open. Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip decides whether an error counts as a failure. Nil counts
	// every non-nil error.
	ShouldTrip func(err error) bool

	// OnStateChange is called on every transition, with the lock held.
	OnStateChange func(from, to State)
}

// BreakerConfigFrom builds a BreakerConfig from config values. Non-positive
// values keep the defaults.
func BreakerConfigFrom(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := BreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second}
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// Breaker is a circuit breaker for one remote endpoint.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// Guard runs fn through b. It returns ErrCircuitOpen without calling fn while
// the circuit is open, and while another caller holds the half-open probe.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := b.allow()
	if err != nil {
		return zero, err
	}
	if probe {
		defer b.releaseProbe()
	}
	v, err := fn(ctx)
	b.record(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// State returns the current state. An open circuit past its reset timeout
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.transition(Closed)
}

// allow admits a call. In half-open state only one call, the probe, is
// admitted until it finishes.
func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return false, nil
	case Open:
		if b.nowFunc().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		b.transition(HalfOpen)
	}
	if b.probing {
		return false, ErrCircuitOpen
	}
	b.probing = true
	return true, nil
}

func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trip := err != nil
	if trip && b.cfg.ShouldTrip != nil {
		trip = b.cfg.ShouldTrip(err)
	}
	if !trip {
		b.failures = 0
		b.transition(Closed)
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.nowFunc()
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
