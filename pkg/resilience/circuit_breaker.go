// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience implements the error-handling core of Vimarsh:
// circuit breakers, intelligent retry, error classification, graceful
// degradation, and health monitoring.
//
// Every outbound call the guidance service makes (Gemini, vector search,
// the external fallback LLM) is wrapped by this package. Components are
// plain dependency-injected objects constructed once at process start;
// there is no package-level mutable state.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
//
// # States
//
//   - Closed: Normal operation, requests flow through
//   - Open: Circuit tripped, requests are rejected immediately
//   - HalfOpen: Testing if service recovered, limited requests allowed
//
// # State Diagram
//
//	   ┌─────────────────────────────────────┐
//	   │                                     │
//	   ▼                                     │
//	CLOSED ──[failure threshold]──► OPEN ───┘
//	   ▲                              │
//	   │                              │
//	   └───[successes]◄── HALF_OPEN ◄┘
//	                      [timeout]
type CircuitState int

const (
	// StateClosed is the normal operating state.
	StateClosed CircuitState = iota

	// StateOpen means the circuit has tripped and calls are rejected.
	StateOpen

	// StateHalfOpen means a recovery probe is in flight.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrCircuitOpen is returned when a call is rejected because the
// breaker is open and the recovery timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures circuit breaker behavior.
//
// # Example
//
//	cfg := BreakerConfig{
//	    FailureThreshold: 3,               // Open after 3 consecutive failures
//	    SuccessThreshold: 2,               // Close after 2 consecutive successes
//	    OpenTimeout:      30*time.Second,  // Stay open for 30s
//	}
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is consecutive successes required to close
	// from half-open. Default: 2
	SuccessThreshold int

	// OpenTimeout is how long to stay open before admitting a probe.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// OnStateChange is called when the state transitions.
	// Invoked asynchronously so slow observers cannot block calls.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker guards a single named operation.
//
// # Description
//
// Prevents cascading failures by refusing calls to a dependency that is
// known to be failing. After OpenTimeout, the next call is admitted as a
// recovery probe (half-open). The transition out of OPEN is lazy: it is
// evaluated when a call arrives, not by a background timer.
//
// # Thread Safety
//
// CircuitBreaker is safe for concurrent use.
//
// # Example
//
//	cb := NewCircuitBreaker("llm_service", DefaultBreakerConfig())
//
//	err := cb.Execute(func() error {
//	    return callGemini()
//	})
//	if errors.Is(err, ErrCircuitOpen) {
//	    // Known to be down; go to the fallback chain instead.
//	}
type CircuitBreaker struct {
	name        string
	config      BreakerConfig
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	probing     bool
	mu          sync.Mutex

	// Lifetime counters for observability.
	totalCalls     uint64
	totalFailures  uint64
	totalRejected  uint64
	lastTransition time.Time
}

// NewCircuitBreaker creates a breaker for the named operation, starting
// in the closed state. Zero-value config fields fall back to defaults.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:           name,
		config:         config,
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
//
// # Outputs
//
//   - error: ErrCircuitOpen if the call was rejected, otherwise the
//     error returned by fn (nil on success).
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

// ExecuteCtx runs fn with a context if the circuit allows it.
//
// A context error from fn counts as a failure like any other: a
// dependency that keeps timing out should trip the breaker.
func (cb *CircuitBreaker) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// allow decides whether a call may proceed, applying the lazy
// OPEN → HALF_OPEN transition.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.OpenTimeout {
			cb.transition(StateHalfOpen)
			cb.probing = true
			return true
		}
		cb.totalRejected++
		return false

	case StateHalfOpen:
		// Admit exactly one probe at a time. Concurrent calls wait for
		// the in-flight probe's verdict by being rejected.
		if cb.probing {
			cb.totalRejected++
			return false
		}
		cb.probing = true
		return true

	default:
		return false
	}
}

// record applies the outcome of a permitted call.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
	}

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.successes = 0
	cb.totalFailures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// Any failure during a probe re-opens the circuit.
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successes >= cb.config.SuccessThreshold {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) transition(state CircuitState) {
	if cb.state == state {
		return
	}

	old := cb.state
	cb.state = state
	cb.lastTransition = time.Now()

	if cb.config.OnStateChange != nil {
		// Callback runs without the lock held to prevent deadlocks.
		go cb.config.OnStateChange(cb.name, old, state)
	}
}

// Name returns the operation name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit state. An open circuit whose
// timeout has elapsed reports HALF_OPEN, matching what the next call
// through the breaker will observe.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.config.OpenTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Snapshot reports the breaker's current state and lifetime counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		Name:           cb.name,
		State:          cb.state,
		Failures:       cb.failures,
		TotalCalls:     cb.totalCalls,
		TotalFailures:  cb.totalFailures,
		TotalRejected:  cb.totalRejected,
		LastTransition: cb.lastTransition,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker for health
// reporting and dashboards.
type BreakerSnapshot struct {
	Name           string       `json:"name"`
	State          CircuitState `json:"-"`
	StateLabel     string       `json:"state"`
	Failures       int          `json:"consecutive_failures"`
	TotalCalls     uint64       `json:"total_calls"`
	TotalFailures  uint64       `json:"total_failures"`
	TotalRejected  uint64       `json:"total_rejected"`
	LastTransition time.Time    `json:"last_transition"`
}

// Reset forces the circuit to closed state, clearing all counters.
// Use when the dependency is known to have been fixed externally.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probing = false

	if old != StateClosed && cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, old, StateClosed)
	}
}

// BreakerRegistry manages circuit breakers for multiple services.
//
// # Description
//
// One breaker exists per protected service/operation name, created on
// demand with the registry's default configuration and kept for the
// lifetime of the process.
//
// # Thread Safety
//
// BreakerRegistry is safe for concurrent use.
//
// # Example
//
//	reg := NewBreakerRegistry(DefaultBreakerConfig())
//	cb := reg.Get("vector_search")
//	cb.Execute(func() error { ... })
type BreakerRegistry struct {
	defaultConfig BreakerConfig
	breakers      map[string]*CircuitBreaker
	mu            sync.RWMutex
}

// NewBreakerRegistry creates an empty registry with the given default
// configuration for new breakers.
func NewBreakerRegistry(defaultConfig BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		defaultConfig: defaultConfig,
		breakers:      make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for a service, creating it if needed.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, r.defaultConfig)
	r.breakers[name] = cb
	return cb
}

// GetWithConfig returns the named breaker, creating it with a custom
// configuration if it does not exist yet. An existing breaker keeps
// its original configuration.
func (r *BreakerRegistry) GetWithConfig(name string, config BreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, exists := r.breakers[name]; exists {
		return cb
	}

	cb := NewCircuitBreaker(name, config)
	r.breakers[name] = cb
	return cb
}

// States returns the current state of every registered breaker.
func (r *BreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]CircuitState, len(r.breakers))
	for name, cb := range r.breakers {
		result[name] = cb.State()
	}
	return result
}

// Snapshots returns a point-in-time view of every registered breaker.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]BreakerSnapshot, 0, len(r.breakers))
	for _, cb := range r.breakers {
		snap := cb.Snapshot()
		snap.StateLabel = snap.State.String()
		result = append(result, snap)
	}
	return result
}

// ResetAll resets every registered breaker to closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
