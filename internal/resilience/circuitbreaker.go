// Package resilience wraps the speech, language and synthesis backends in
// failover chains.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// [FallbackGroup] holds one breaker per backend and tries backends in
// registration order; [STTChain], [LLMChain] and [TTSChain] adapt a group to
// the provider interfaces the turn coordinator consumes. A cancelled turn is
// never counted against a backend and never fails over.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] without calling the
// backend while the breaker is open or its half-open probes are used up.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is a breaker state.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets a few probe calls through to test the backend.
	StateHalfOpen
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
	DefaultProbes      = 3
)

// CircuitBreakerConfig configures a [CircuitBreaker]. Zero fields take the
// package defaults.
type CircuitBreakerConfig struct {
	// Name labels logs and state-change callbacks, usually the provider name.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker rejects calls.
	ResetTimeout time.Duration

	// HalfOpenMax is how many probes must succeed to close again. A single
	// failed probe reopens the breaker.
	HalfOpenMax int

	// IsFailure decides whether an error counts. Errors it rejects are
	// returned to the caller untouched. Default: everything except context
	// cancellation and deadline expiry.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: [time.Now].
	Now func() time.Time
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker stops calling a backend after repeated failures and probes
// it again after a cooldown.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, closed state only
	openedAt time.Time // when the breaker last opened
	inFlight int       // probes admitted in half-open
	passed   int       // probes that succeeded in half-open
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultCooldown
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Counts reports whether err would count against the breaker.
func (cb *CircuitBreaker) Counts(err error) bool {
	return err != nil && cb.cfg.IsFailure(err)
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen], and
// feeds the outcome back into the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		change = cb.moveLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

// settle records the result of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	failed := cb.Counts(err)
	switch {
	case probe && cb.state != StateHalfOpen:
		// Reset or another probe already decided.
	case probe && failed:
		change = cb.moveLocked(StateOpen)
	case probe && err != nil:
		cb.inFlight--
	case probe:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			change = cb.moveLocked(StateClosed)
		}
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			change = cb.moveLocked(StateOpen)
		}
	case err == nil:
		cb.failures = 0
	}
}

// moveLocked switches to state to, resets the counters that belong to it and
// returns the callback to run after unlocking.
func (cb *CircuitBreaker) moveLocked(to State) func() {
	from := cb.state
	cb.state = to
	cb.inFlight, cb.passed = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
		slog.Warn("resilience: breaker opened", "provider", cb.cfg.Name,
			"from", from.String(), "consecutive_failures", cb.failures)
	case StateClosed:
		cb.failures = 0
		slog.Info("resilience: breaker closed", "provider", cb.cfg.Name)
	case StateHalfOpen:
		slog.Info("resilience: breaker half-open", "provider", cb.cfg.Name)
	}
	if cb.cfg.OnStateChange == nil || from == to {
		return nil
	}
	name, hook := cb.cfg.Name, cb.cfg.OnStateChange
	return func() { hook(name, from, to) }
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.moveLocked(StateClosed)
	cb.mu.Unlock()
	if change != nil {
		change()
	}
}
