// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the guidance
// service.
//
// # Integration
//
// Metrics are exposed on /metrics. Use with Prometheus + Grafana for
// dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vimarsh"
const guidanceSubsystem = "guidance"

// Status values for RequestsTotal.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusDegraded = "degraded"
	StatusBlocked  = "blocked"
)

// GuidanceMetrics holds the Prometheus instruments for guidance
// requests. Initialize once at startup via NewGuidanceMetrics.
type GuidanceMetrics struct {
	// RequestsTotal counts guidance requests.
	// Labels: personality, status (success, error, degraded, blocked)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request latency.
	// Labels: personality
	RequestDurationSeconds *prometheus.HistogramVec

	// TokensTotal counts tokens by direction and model.
	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// CacheLookupsTotal counts response-cache lookups.
	// Labels: outcome (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// RetrievedPassages observes how many passages each request pulled.
	RetrievedPassages prometheus.Histogram

	// ActiveRequests tracks in-flight guidance requests.
	ActiveRequests prometheus.Gauge
}

// NewGuidanceMetrics creates and registers the instruments on the
// default registry. Call once per process.
func NewGuidanceMetrics() *GuidanceMetrics {
	return &GuidanceMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "requests_total",
				Help:      "Guidance requests by personality and status",
			},
			[]string{"personality", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end guidance request latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"personality"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "tokens_total",
				Help:      "Tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		RetrievedPassages: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "retrieved_passages",
				Help:      "Passages retrieved per request",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),

		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "active_requests",
				Help:      "In-flight guidance requests",
			},
		),
	}
}

// ObserveRequest records one completed request.
func (m *GuidanceMetrics) ObserveRequest(personality, status string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(personality, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(personality).Observe(elapsed.Seconds())
}

// ObserveTokens records token usage for one generation.
func (m *GuidanceMetrics) ObserveTokens(model string, input, output int) {
	if input > 0 {
		m.TokensTotal.WithLabelValues("input", model).Add(float64(input))
	}
	if output > 0 {
		m.TokensTotal.WithLabelValues("output", model).Add(float64(output))
	}
}

// ObserveCacheLookup records a cache hit or miss.
func (m *GuidanceMetrics) ObserveCacheLookup(hit bool) {
	if hit {
		m.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		m.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}
