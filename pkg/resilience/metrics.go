// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vimarsh"
const resilienceSubsystem = "resilience"

// Metrics holds the Prometheus instruments for the resilience layer.
//
// # Description
//
// Initialize once at startup via NewMetrics and share the instance
// between the retry manager consumer, the degradation manager consumer,
// and breaker state-change callbacks.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// BreakerState reports each breaker's state as a number
	// (0=closed, 1=open, 2=half-open). Labels: service
	BreakerState *prometheus.GaugeVec

	// BreakerTransitionsTotal counts state transitions.
	// Labels: service, to_state
	BreakerTransitionsTotal *prometheus.CounterVec

	// RetriesTotal counts retry attempts beyond the first.
	// Labels: operation
	RetriesTotal *prometheus.CounterVec

	// FallbacksTotal counts fallback responses served.
	// Labels: strategy
	FallbacksTotal *prometheus.CounterVec

	// ErrorsTotal counts classified errors.
	// Labels: category, source
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the resilience metrics on the
// default registry. Call once per process; duplicate registration
// panics (promauto semantics).
func NewMetrics() *Metrics {
	return &Metrics{
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: resilienceSubsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per service (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),

		BreakerTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resilienceSubsystem,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions by service and target state",
			},
			[]string{"service", "to_state"},
		),

		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resilienceSubsystem,
				Name:      "retries_total",
				Help:      "Retry attempts beyond the first, by operation",
			},
			[]string{"operation"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resilienceSubsystem,
				Name:      "fallbacks_total",
				Help:      "Fallback responses served, by strategy",
			},
			[]string{"strategy"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resilienceSubsystem,
				Name:      "errors_total",
				Help:      "Classified errors by category and source",
			},
			[]string{"category", "source"},
		),
	}
}

// ObserveTransition records a breaker state change. Suitable for use
// as a BreakerConfig.OnStateChange callback:
//
//	cfg.OnStateChange = metrics.ObserveTransition
func (m *Metrics) ObserveTransition(service string, _, to CircuitState) {
	m.BreakerState.WithLabelValues(service).Set(float64(to))
	m.BreakerTransitionsTotal.WithLabelValues(service, to.String()).Inc()
}

// ObserveError records a classified error.
func (m *Metrics) ObserveError(ce *ClassifiedError) {
	m.ErrorsTotal.WithLabelValues(string(ce.Category), ce.Source).Inc()
}

// ObserveFallback records a served fallback response.
func (m *Metrics) ObserveFallback(resp *FallbackResponse) {
	m.FallbacksTotal.WithLabelValues(resp.Strategy).Inc()
}

// ObserveRetry records one retry attempt for an operation.
func (m *Metrics) ObserveRetry(operation string) {
	m.RetriesTotal.WithLabelValues(operation).Inc()
}
