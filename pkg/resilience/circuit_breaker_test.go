// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingCall() error { return errBoom }
func okCall() error      { return nil }

// forceTimeout backdates the last failure so the OpenTimeout appears
// elapsed without sleeping in tests.
func forceTimeout(cb *CircuitBreaker) {
	cb.mu.Lock()
	cb.lastFailure = time.Now().Add(-cb.config.OpenTimeout - time.Second)
	cb.mu.Unlock()
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("llm_service", DefaultBreakerConfig())

	if got := cb.State(); got != StateClosed {
		t.Fatalf("expected initial state CLOSED, got %s", got)
	}
	if err := cb.Execute(okCall); err != nil {
		t.Fatalf("expected success through closed breaker, got %v", err)
	}
}

// TestCircuitBreaker_OpensAfterThreshold feeds five consecutive
// timeouts into a breaker with threshold 3: the breaker must be OPEN
// after the third failure and reject calls four and five.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("llm_service", cfg)

	timeout := errors.New("request timed out")
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return timeout }); !errors.Is(err, timeout) {
			t.Fatalf("call %d: expected the operation error, got %v", i+1, err)
		}
	}

	if got := cb.State(); got != StateOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", got)
	}

	for i := 3; i < 5; i++ {
		err := cb.Execute(func() error { return timeout })
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("call %d: expected ErrCircuitOpen, got %v", i+1, err)
		}
	}

	snap := cb.Snapshot()
	if snap.TotalRejected != 2 {
		t.Errorf("expected 2 rejected calls, got %d", snap.TotalRejected)
	}
}

func TestCircuitBreaker_ClosedSuccessResetsFailures(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("llm_service", cfg)

	cb.Execute(failingCall)
	cb.Execute(failingCall)
	cb.Execute(okCall)
	cb.Execute(failingCall)
	cb.Execute(failingCall)

	if got := cb.State(); got != StateClosed {
		t.Fatalf("expected CLOSED, failures were interleaved with success, got %s", got)
	}
	if got := cb.Failures(); got != 2 {
		t.Errorf("expected failure count 2, got %d", got)
	}
}

// TestCircuitBreaker_HalfOpenAfterTimeout verifies the lazy OPEN →
// HALF_OPEN transition: after the timeout, exactly one probe is
// admitted before the state is re-evaluated.
func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("vector_search", cfg)

	cb.Execute(failingCall)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("expected OPEN, got %s", got)
	}

	forceTimeout(cb)

	probeRan := false
	err := cb.Execute(func() error { probeRan = true; return nil })
	if err != nil {
		t.Fatalf("expected probe to be admitted, got %v", err)
	}
	if !probeRan {
		t.Fatal("probe was not invoked")
	}
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after one successful probe, got %s", got)
	}

	// Second success reaches SuccessThreshold and closes the circuit.
	if err := cb.Execute(okCall); err != nil {
		t.Fatalf("expected second probe to succeed, got %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("expected CLOSED after %d successes, got %s", cfg.SuccessThreshold, got)
	}
}

// TestCircuitBreaker_StateReportsHalfOpenAfterTimeout verifies that
// observers see HALF_OPEN once an open circuit's timeout elapses, even
// before any call re-evaluates the stored state.
func TestCircuitBreaker_StateReportsHalfOpenAfterTimeout(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("vector_search", cfg)

	cb.Execute(failingCall)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("expected OPEN before the timeout, got %s", got)
	}

	forceTimeout(cb)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("expected the HALF_OPEN view after the timeout, got %s", got)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("llm_service", cfg)

	cb.Execute(failingCall)
	forceTimeout(cb)

	if err := cb.Execute(failingCall); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run and fail, got %v", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("expected OPEN after failed probe, got %s", got)
	}

	// Immediately after re-opening the timeout has not elapsed.
	if err := cb.Execute(okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen right after reopen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute}
	cb := NewCircuitBreaker("llm_service", cfg)

	cb.Execute(failingCall)
	forceTimeout(cb)

	// Hold the probe open and try a second call while it is in flight.
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			<-release
			return nil
		})
	}()

	// Wait for the probe to claim the half-open slot.
	deadline := time.After(2 * time.Second)
	for {
		cb.mu.Lock()
		claimed := cb.probing
		cb.mu.Unlock()
		if claimed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("probe never claimed the half-open slot")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := cb.Execute(okCall); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected concurrent call during probe to be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []CircuitState

	cfg := BreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	}
	cb := NewCircuitBreaker("llm_service", cfg)
	cb.Execute(failingCall)

	// Callback is async; poll briefly.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(transitions)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("OnStateChange never fired")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if transitions[0] != StateOpen {
		t.Errorf("expected first transition to OPEN, got %s", transitions[0])
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour}
	cb := NewCircuitBreaker("llm_service", cfg)

	cb.Execute(failingCall)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("expected OPEN, got %s", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", got)
	}
	if err := cb.Execute(okCall); err != nil {
		t.Fatalf("expected call to pass after reset, got %v", err)
	}
}

func TestBreakerRegistry_GetCreatesOnce(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig())

	a := reg.Get("llm_service")
	b := reg.Get("llm_service")
	if a != b {
		t.Fatal("expected the same breaker instance for the same name")
	}

	c := reg.Get("vector_search")
	if a == c {
		t.Fatal("expected distinct breakers for distinct names")
	}

	states := reg.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(states))
	}
	if states["llm_service"] != StateClosed {
		t.Errorf("expected CLOSED, got %s", states["llm_service"])
	}
}

func TestBreakerRegistry_GetWithConfigKeepsExisting(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig())

	a := reg.GetWithConfig("llm_service", BreakerConfig{FailureThreshold: 1})
	b := reg.GetWithConfig("llm_service", BreakerConfig{FailureThreshold: 99})
	if a != b {
		t.Fatal("expected existing breaker to be returned unchanged")
	}
	if a.config.FailureThreshold != 1 {
		t.Errorf("expected original config to win, got threshold %d", a.config.FailureThreshold)
	}
}

func TestBreakerRegistry_ResetAll(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})

	reg.Get("llm_service").Execute(failingCall)
	reg.Get("vector_search").Execute(failingCall)

	reg.ResetAll()
	for name, state := range reg.States() {
		if state != StateClosed {
			t.Errorf("%s: expected CLOSED after ResetAll, got %s", name, state)
		}
	}
}
