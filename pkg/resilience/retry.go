// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// BackoffStrategy selects how the delay between retry attempts grows.
type BackoffStrategy string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed BackoffStrategy = "fixed"

	// BackoffLinear waits BaseDelay * attempt.
	BackoffLinear BackoffStrategy = "linear"

	// BackoffExponential waits BaseDelay * 2^attempt.
	BackoffExponential BackoffStrategy = "exponential"

	// BackoffFibonacci waits BaseDelay * fib(attempt+1).
	BackoffFibonacci BackoffStrategy = "fibonacci"

	// BackoffJittered is exponential plus a random fraction, which
	// spreads out retry storms from concurrent callers.
	BackoffJittered BackoffStrategy = "jittered"
)

// RetryConfig configures a retry loop. Immutable once constructed.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations allowed,
	// including the first. Default: 3.
	MaxAttempts int

	// BaseDelay seeds the backoff computation. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// Strategy selects the backoff curve. Default: BackoffJittered.
	Strategy BackoffStrategy

	// JitterFraction is the maximum random fraction added by
	// BackoffJittered (0.25 means up to +25%). Default: 0.25.
	JitterFraction float64
}

// DefaultRetryConfig returns the defaults used for LLM and vector
// search calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Strategy:       BackoffJittered,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Strategy == "" {
		c.Strategy = BackoffJittered
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.25
	}
	return c
}

// Delay computes the wait before retry attempt number `attempt`
// (0-based: attempt 0 is the delay after the first failure). The
// result is capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()

	var d time.Duration
	switch c.Strategy {
	case BackoffFixed:
		d = c.BaseDelay
	case BackoffLinear:
		d = c.BaseDelay * time.Duration(attempt+1)
	case BackoffExponential:
		d = c.BaseDelay << uint(attempt)
	case BackoffFibonacci:
		d = c.BaseDelay * time.Duration(fib(attempt+1))
	case BackoffJittered:
		d = c.BaseDelay << uint(attempt)
		if d > c.MaxDelay {
			d = c.MaxDelay
		}
		d += time.Duration(rand.Float64() * c.JitterFraction * float64(d))
	default:
		d = c.BaseDelay
	}

	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// fib returns the nth Fibonacci number (fib(1) = fib(2) = 1), capped
// to keep the shift arithmetic sane for pathological attempt counts.
func fib(n int) int64 {
	if n > 40 {
		n = 40
	}
	a, b := int64(0), int64(1)
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}

// RetryStats tracks per-operation retry outcomes for observability.
type RetryStats struct {
	Operation   string  `json:"operation"`
	Attempts    uint64  `json:"attempts"`
	Successes   uint64  `json:"successes"`
	Failures    uint64  `json:"failures"`
	Rejected    uint64  `json:"rejected_by_breaker"`
	SuccessRate float64 `json:"success_rate"`
}

// RetryManager runs operations under a retry policy, consulting the
// per-operation circuit breaker before each attempt and the error
// classifier after each failure.
//
// # Description
//
// The manager never invokes an operation more than MaxAttempts times.
// Failures classified as non-retryable (authentication, authorization,
// validation) abort the loop immediately and propagate. A breaker
// rejection aborts the loop with ErrCircuitOpen.
//
// # Thread Safety
//
// RetryManager is safe for concurrent use.
type RetryManager struct {
	config     RetryConfig
	breakers   *BreakerRegistry
	classifier *Classifier

	mu    sync.Mutex
	stats map[string]*retryCounters

	// metrics, when set, receives one observation per retry attempt.
	metrics *Metrics

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type retryCounters struct {
	attempts  uint64
	successes uint64
	failures  uint64
	rejected  uint64
}

// NewRetryManager creates a manager with the given policy. The breaker
// registry and classifier must be shared with the rest of the
// resilience layer so trips and frequency counts line up.
func NewRetryManager(config RetryConfig, breakers *BreakerRegistry, classifier *Classifier) *RetryManager {
	return &RetryManager{
		config:     config.withDefaults(),
		breakers:   breakers,
		classifier: classifier,
		stats:      make(map[string]*retryCounters),
		sleep:      sleepCtx,
	}
}

// SetMetrics attaches the shared resilience metrics. Call before the
// manager serves traffic.
func (m *RetryManager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn under the retry policy for the named operation.
//
// # Inputs
//
//   - ctx: Cancellation applies between attempts and during backoff
//     waits; fn receives it directly.
//   - operation: Breaker key and stats key ("llm_service", ...).
//   - fn: The operation. A nil return ends the loop.
//
// # Outputs
//
//   - error: nil on success; ErrCircuitOpen when the breaker rejected
//     an attempt; otherwise the last classified error. The returned
//     error is a *ClassifiedError wrapping the original failure, so
//     callers can inspect Category and Recovery.
func (m *RetryManager) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	cb := m.breakers.Get(operation)

	var last *ClassifiedError
	for attempt := 0; attempt < m.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.config.Delay(attempt-1)); err != nil {
				return fmt.Errorf("retry aborted for %s: %w", operation, err)
			}
			if m.metrics != nil {
				m.metrics.ObserveRetry(operation)
			}
		}

		m.bump(operation, func(c *retryCounters) { c.attempts++ })

		err := cb.ExecuteCtx(ctx, fn)
		if err == nil {
			m.bump(operation, func(c *retryCounters) { c.successes++ })
			return nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			m.bump(operation, func(c *retryCounters) { c.rejected++ })
			return fmt.Errorf("%s: %w", operation, ErrCircuitOpen)
		}

		m.bump(operation, func(c *retryCounters) { c.failures++ })
		last = m.classifier.Classify(err, operation, 0)

		if !last.Retryable() {
			break
		}
	}

	if last == nil {
		// MaxAttempts <= 0 is normalized away, so this is unreachable,
		// but never return a bare nil error for a failed loop.
		return fmt.Errorf("%s: retries exhausted", operation)
	}
	return last
}

// bump applies a counter mutation for the named operation.
func (m *RetryManager) bump(operation string, f func(*retryCounters)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.stats[operation]
	if !ok {
		c = &retryCounters{}
		m.stats[operation] = c
	}
	f(c)
}

// Stats returns the retry counters for one operation.
func (m *RetryManager) Stats(operation string) RetryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.stats[operation]
	if !ok {
		return RetryStats{Operation: operation}
	}
	s := RetryStats{
		Operation: operation,
		Attempts:  c.attempts,
		Successes: c.successes,
		Failures:  c.failures,
		Rejected:  c.rejected,
	}
	if c.attempts > 0 {
		s.SuccessRate = float64(c.successes) / float64(c.attempts)
	}
	return s
}

// AllStats returns counters for every operation seen so far.
func (m *RetryManager) AllStats() []RetryStats {
	m.mu.Lock()
	names := make([]string, 0, len(m.stats))
	for name := range m.stats {
		names = append(names, name)
	}
	m.mu.Unlock()

	out := make([]RetryStats, 0, len(names))
	for _, name := range names {
		out = append(out, m.Stats(name))
	}
	return out
}
