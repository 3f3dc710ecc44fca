package client

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a probe is let through
	Timeout time.Duration
	// OnStateChange is called synchronously when the circuit state changes
	OnStateChange func(from, to CircuitState)
	// Now overrides the clock; tests only.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker fails calls fast after repeated upstream failures. It never
// retries a call on its own.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	state  CircuitState

	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
	}
}

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Allow checks if a request should be allowed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.config.Now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastError = err

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.config.Now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil && oldState != newState {
		cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the last recorded error.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

// =============================================================================
// Transport
// =============================================================================

// BreakerTransport guards an http.RoundTripper with a CircuitBreaker.
// Network errors and 5xx answers count as failures; everything else,
// including 4xx, counts as success.
type BreakerTransport struct {
	Base    http.RoundTripper
	Breaker *CircuitBreaker
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Breaker.Allow(); err != nil {
		return nil, err
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		if req.Context().Err() == nil {
			t.Breaker.RecordFailure(err)
		}
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		t.Breaker.RecordFailure(&HTTPError{StatusCode: resp.StatusCode})
	} else {
		t.Breaker.RecordSuccess()
	}
	return resp, nil
}

// HTTPError is an upstream failure status seen by the breaker.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}
