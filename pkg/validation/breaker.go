// Copyright 2025 Certen Protocol
//
// CircuitBreaker guards the dispatcher's publication to the validator bus
// (§4.7): if broker errors reach a threshold within a window, the breaker
// opens and the dispatcher falls back to synchronous, in-process
// validation, auto-recovering after a reset timeout. The state-tracking
// shape (counters, threshold, callbacks, explicit state transitions) is
// grounded on the teacher's ConsensusHealthMonitor stall detector; the
// domain here is publish failures, not block-height stalls.

package validation

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's closed set of states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker is a simple counting breaker over a sliding window.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	window           time.Duration
	resetTimeout     time.Duration
	clock            func() time.Time

	state    BreakerState
	failures []time.Time
	openedAt time.Time

	onOpen    func()
	onRecover func()
}

// NewCircuitBreaker builds a breaker. failureThreshold failures within
// window opens the breaker; it half-opens after resetTimeout and closes
// again on the next successful call.
func NewCircuitBreaker(failureThreshold int, window, resetTimeout time.Duration, clock func() time.Time) *CircuitBreaker {
	if clock == nil {
		clock = time.Now
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		window:           window,
		resetTimeout:     resetTimeout,
		clock:            clock,
		state:            BreakerClosed,
	}
}

// OnOpen/OnRecover register observer callbacks (metrics, logging).
func (b *CircuitBreaker) OnOpen(f func())    { b.onOpen = f }
func (b *CircuitBreaker) OnRecover(f func()) { b.onRecover = f }

// Allow reports whether a call should be attempted against the protected
// resource right now.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from half-open) or simply continues
// (from closed).
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasOpen := b.state != BreakerClosed
	b.state = BreakerClosed
	b.failures = nil
	if wasOpen && b.onRecover != nil {
		b.onRecover()
	}
}

// RecordFailure appends a failure and opens the breaker if the threshold
// within window is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	b.failures = append(b.failures, now)

	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept

	if len(b.failures) >= b.failureThreshold && b.state != BreakerOpen {
		b.state = BreakerOpen
		b.openedAt = now
		if b.onOpen != nil {
			b.onOpen()
		}
	}
}

// State reports the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
