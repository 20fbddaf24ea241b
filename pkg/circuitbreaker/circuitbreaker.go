// Package circuitbreaker stops calling a remote store after repeated failures
// and lets a single probe through once the cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

var (
	// ErrCircuitOpen is returned without calling the store while the circuit is open.
	ErrCircuitOpen = errors.New("circuitbreaker: circuit is open")
	// ErrProbeInFlight is returned while the single half-open probe is running.
	ErrProbeInFlight = errors.New("circuitbreaker: probe in flight")
)

// Settings configures a breaker. Zero values take the store defaults.
type Settings struct {
	Name string

	// FailureThreshold consecutive failures open the circuit. Default: 3
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a probe. Default: 10s
	Cooldown time.Duration

	// OnStateChange runs under the breaker lock.
	OnStateChange func(name string, from, to State)

	// Ignore marks errors that prove the store is reachable, such as a
	// conflict. They count as successes.
	Ignore func(error) bool
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 10 * time.Second
	}
	return s
}

// CircuitBreaker guards calls to one backing service.
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(settings Settings) *CircuitBreaker {
	return &CircuitBreaker{settings: settings.withDefaults(), now: time.Now}
}

// StoreBreaker returns the breaker placed in front of remote unlock stores.
func StoreBreaker(name string, onStateChange func(name string, from, to State), ignore func(error) bool) *CircuitBreaker {
	return New(Settings{Name: name, OnStateChange: onStateChange, Ignore: ignore})
}

// Execute runs fn if the circuit allows it and records the outcome.
// A context that is already done is returned as is and not recorded.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(probe, err)
	return err
}

// IsRejection reports whether err came from the breaker rather than the store.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProbeInFlight)
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.Cooldown {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			return false, ErrProbeInFlight
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	failed := err != nil && (cb.settings.Ignore == nil || !cb.settings.Ignore(err))
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.settings.FailureThreshold {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}
