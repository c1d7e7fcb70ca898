// Package circuitbreaker guards calls to an unreliable upstream, tripping
// open after sustained failures so callers back off instead of piling on.
package circuitbreaker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests flow through normally
	StateClosed State = "closed"
	// StateOpen means requests are rejected without being attempted
	StateOpen State = "open"
	// StateHalfOpen means a few probe requests test recovery
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the breaker rejects a call outright
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open probe budget is spent
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// CircuitBreaker tracks the failure rate of an upstream and short-circuits
// calls while the upstream looks down
type CircuitBreaker struct {
	name             string
	maxFailures      int
	failureThreshold float64
	cooldown         time.Duration
	halfOpenMaxCalls int

	mu               sync.RWMutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	consecutiveFails int
	lastStateChange  time.Time
}

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures is both the minimum sample size and the consecutive
	// failure count that trips the breaker (default: 10)
	MaxFailures int
	// FailureThreshold is the failure fraction that trips the breaker
	// once enough calls have been seen (default: 0.5)
	FailureThreshold float64
	// Cooldown is how long the breaker stays open before probing (default: 30s)
	Cooldown time.Duration
	// HalfOpenMaxCalls is the probe budget while half-open (default: 3)
	HalfOpenMaxCalls int
}

// New creates a circuit breaker
func New(cfg *Config) *CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	halfOpenMax := cfg.HalfOpenMaxCalls
	if halfOpenMax <= 0 {
		halfOpenMax = 3
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		maxFailures:      maxFailures,
		failureThreshold: threshold,
		cooldown:         cooldown,
		halfOpenMaxCalls: halfOpenMax,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn under the breaker's protection. When the breaker is open
// the call is rejected with ErrCircuitOpen and fn is never invoked.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.cooldown {
			cb.setState(StateHalfOpen)
			// Counters restart so the probe budget is not already spent
			cb.resetCounters()
			log.Printf("[CircuitBreaker] %s: half-open, probing upstream", cb.name)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.totalCalls >= cb.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	if err != nil {
		cb.onFailure()
		return
	}
	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen && cb.successes >= cb.halfOpenMaxCalls {
		cb.setState(StateClosed)
		cb.resetCounters()
		log.Printf("[CircuitBreaker] %s: closed after recovery", cb.name)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.setState(StateOpen)
			log.Printf("[CircuitBreaker] %s: opened after %d/%d failures",
				cb.name, cb.failures, cb.totalCalls)
		}
	case StateHalfOpen:
		// Any probe failure reopens immediately
		cb.setState(StateOpen)
		log.Printf("[CircuitBreaker] %s: reopened, probe failed", cb.name)
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.maxFailures {
		return true
	}
	// The rate check needs a minimum sample to mean anything
	if cb.totalCalls < cb.maxFailures {
		return false
	}
	return float64(cb.failures)/float64(cb.totalCalls) >= cb.failureThreshold
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
}

func (cb *CircuitBreaker) resetCounters() {
	cb.failures = 0
	cb.successes = 0
	cb.totalCalls = 0
	cb.consecutiveFails = 0
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.resetCounters()
}
