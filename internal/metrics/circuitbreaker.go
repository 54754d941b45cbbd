package metrics

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig carries the four tunables from spec.md §4.8.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTime     time.Duration
	SuccessThreshold int
	FailureWindow    time.Duration
}

// DefaultBreakerConfig matches spec.md's stated defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTime:      30 * time.Second,
		SuccessThreshold: 3,
		FailureWindow:    60 * time.Second,
	}
}

// CircuitBreaker guards a single external dependency (e.g. the stream
// store read path). It is safe for concurrent use.
type CircuitBreaker struct {
	mu     sync.Mutex
	name   string
	cfg    BreakerConfig
	gauge  *Metrics

	state            BreakerState
	consecutiveFails int
	successesInHalf  int
	lastFailure      time.Time
	windowStart      time.Time
}

// NewCircuitBreaker constructs a breaker in the closed state. m may be
// nil, in which case state transitions are not exported as a gauge
// (useful in unit tests that don't want a registry).
func NewCircuitBreaker(name string, cfg BreakerConfig, m *Metrics) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		cfg:         cfg,
		gauge:       m,
		state:       StateClosed,
		windowStart: time.Now(),
	}
	cb.report()
	return cb
}

// Allow reports whether a call should be attempted right now. When the
// breaker is open past its recovery time, it transitions to half-open
// and allows the call through; every call is allowed while half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.cfg.RecoveryTime {
			cb.state = StateHalfOpen
			cb.successesInHalf = 0
			cb.report()
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess marks the most recent call as having succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successesInHalf++
		if cb.successesInHalf >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.consecutiveFails = 0
			cb.windowStart = time.Now()
			cb.report()
		}
	case StateClosed:
		cb.consecutiveFails = 0
	}
}

// RecordFailure marks the most recent call as having failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.lastFailure = now

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.report()
	case StateClosed:
		if now.Sub(cb.windowStart) > cb.cfg.FailureWindow {
			cb.windowStart = now
			cb.consecutiveFails = 0
		}
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.report()
		}
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) report() {
	if cb.gauge == nil {
		return
	}
	cb.gauge.CircuitBreakerGauge.WithLabelValues(cb.name).Set(float64(cb.state))
}
