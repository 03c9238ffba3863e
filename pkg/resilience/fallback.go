// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DegradationLevel summarizes how much of the system is functional.
type DegradationLevel string

const (
	FullService      DegradationLevel = "full_service"
	MinorDegradation DegradationLevel = "minor_degradation"
	MajorDegradation DegradationLevel = "major_degradation"
	MinimalService   DegradationLevel = "minimal_service"
	EmergencyMode    DegradationLevel = "emergency_mode"
)

// FallbackContext carries the request details a strategy needs to
// produce substitute content.
type FallbackContext struct {
	// Query is the user's question, used for cache lookups and
	// simplified re-asks.
	Query string

	// Personality is the persona the user addressed.
	Personality string

	// SessionID correlates the fallback with the conversation.
	SessionID string

	// FailedServices are the services that triggered degradation.
	FailedServices []string

	// OriginalError is the classified failure that started the chain,
	// nil for proactive degradation.
	OriginalError *ClassifiedError
}

// FallbackResponse is the substitute content a strategy produced.
//
// Fallbacks are best-effort content substitutions, never transactions:
// there is nothing to roll back.
type FallbackResponse struct {
	// Content is the user-visible text.
	Content string `json:"content"`

	// Strategy names the strategy that produced the content.
	Strategy string `json:"strategy"`

	// Degraded is always true for fallback responses; callers copy it
	// into response metadata so clients can tell substitute content
	// from the real thing.
	Degraded bool `json:"degraded"`

	// FailedServices lists every service this response substitutes for.
	FailedServices []string `json:"failed_services,omitempty"`

	// Metadata carries strategy-specific detail (cache age, template
	// name, escalation ticket id).
	Metadata map[string]string `json:"metadata,omitempty"`

	// GeneratedAt is when the fallback was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

// FallbackStrategy is one rung of the degradation ladder.
//
// Strategies are consulted in registration order; the first applicable
// one wins. Execute may still fail (a cache miss, the external LLM also
// down), in which case the manager moves on to the next rung.
type FallbackStrategy interface {
	// Name identifies the strategy in responses and logs.
	Name() string

	// Applicable reports whether this strategy can serve the request
	// given which services are down.
	Applicable(failedServices []string, fctx *FallbackContext) bool

	// Execute produces the substitute response.
	Execute(ctx context.Context, fctx *FallbackContext) (*FallbackResponse, error)
}

// DegradationManager walks an ordered fallback chain when a service
// fails and tracks per-service health for the system degradation level.
//
// # Description
//
// The chain is static and priority-ordered (cache first, the generic
// apology last). HandleServiceFailure always returns a usable
// response: a built-in generic strategy terminates the chain, so the
// caller never has to invent an apology message at the call site.
//
// # Thread Safety
//
// DegradationManager is safe for concurrent use.
type DegradationManager struct {
	strategies []FallbackStrategy
	health     *healthLedger
	logger     *slog.Logger
}

// NewDegradationManager creates a manager with the given ordered chain.
// The generic terminal strategy is appended automatically.
func NewDegradationManager(strategies []FallbackStrategy, logger *slog.Logger) *DegradationManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DegradationManager{
		strategies: append(append([]FallbackStrategy{}, strategies...), genericStrategy{}),
		health:     newHealthLedger(),
		logger:     logger,
	}
}

// HandleServiceFailure produces substitute content for one failed
// service.
//
// # Outputs
//
//   - *FallbackResponse: never nil.
func (m *DegradationManager) HandleServiceFailure(ctx context.Context, failedService string, fctx *FallbackContext, originalErr *ClassifiedError) *FallbackResponse {
	if fctx == nil {
		fctx = &FallbackContext{}
	}
	fctx.FailedServices = appendUnique(fctx.FailedServices, failedService)
	fctx.OriginalError = originalErr

	m.health.recordFailure(failedService)

	return m.run(ctx, fctx)
}

// HandleMultipleFailures produces a single combined response covering
// several simultaneously failed services. The response metadata names
// every degraded service.
func (m *DegradationManager) HandleMultipleFailures(ctx context.Context, failedServices []string, fctx *FallbackContext) *FallbackResponse {
	if fctx == nil {
		fctx = &FallbackContext{}
	}
	for _, s := range failedServices {
		fctx.FailedServices = appendUnique(fctx.FailedServices, s)
		m.health.recordFailure(s)
	}

	resp := m.run(ctx, fctx)
	if resp.Metadata == nil {
		resp.Metadata = make(map[string]string)
	}
	resp.Metadata["degraded_services"] = strings.Join(fctx.FailedServices, ",")
	return resp
}

// RecordSuccess feeds a healthy outcome into the degradation ledger so
// recovered services stop counting against the system level.
func (m *DegradationManager) RecordSuccess(service string) {
	m.health.recordSuccess(service)
}

// Level derives the current system-wide degradation level from the
// per-service failure ledger.
func (m *DegradationManager) Level() DegradationLevel {
	return m.health.level()
}

// ServiceHealth reports recent per-service failure ratios.
func (m *DegradationManager) ServiceHealth() map[string]ServiceHealth {
	return m.health.snapshot()
}

// run walks the chain and returns the first successful response.
func (m *DegradationManager) run(ctx context.Context, fctx *FallbackContext) *FallbackResponse {
	for _, s := range m.strategies {
		if !s.Applicable(fctx.FailedServices, fctx) {
			continue
		}
		resp, err := s.Execute(ctx, fctx)
		if err != nil {
			m.logger.Warn("fallback strategy failed, trying next",
				"strategy", s.Name(), "error", err)
			continue
		}
		if resp == nil {
			continue
		}
		resp.Strategy = s.Name()
		resp.Degraded = true
		resp.FailedServices = fctx.FailedServices
		if resp.GeneratedAt.IsZero() {
			resp.GeneratedAt = time.Now()
		}
		m.logger.Info("served fallback response",
			"strategy", s.Name(), "failed_services", fctx.FailedServices)
		return resp
	}

	// Unreachable: genericStrategy is always applicable and never
	// fails. Kept as a hard floor anyway.
	return genericResponse(fctx)
}

// =============================================================================
// Terminal strategy
// =============================================================================

// genericStrategy is the guaranteed last rung: a plain "temporarily
// unavailable" message with no dependencies at all.
type genericStrategy struct{}

func (genericStrategy) Name() string { return "generic" }

func (genericStrategy) Applicable([]string, *FallbackContext) bool { return true }

func (genericStrategy) Execute(_ context.Context, fctx *FallbackContext) (*FallbackResponse, error) {
	return genericResponse(fctx), nil
}

func genericResponse(fctx *FallbackContext) *FallbackResponse {
	return &FallbackResponse{
		Content: "Our guidance service is temporarily unavailable. " +
			"Please take a moment of quiet reflection and try again shortly.",
		Strategy:       "generic",
		Degraded:       true,
		FailedServices: fctx.FailedServices,
		GeneratedAt:    time.Now(),
	}
}

// =============================================================================
// Health ledger
// =============================================================================

// ServiceHealth aggregates recent outcomes for one service.
type ServiceHealth struct {
	Service   string    `json:"service"`
	Successes int       `json:"recent_successes"`
	Failures  int       `json:"recent_failures"`
	LastSeen  time.Time `json:"last_seen"`
}

// Failing reports whether the recent record is failure-dominated.
func (h ServiceHealth) Failing() bool {
	return h.Failures > 0 && h.Failures >= h.Successes
}

// healthLedger keeps a small sliding record of outcomes per service.
type healthLedger struct {
	mu      sync.Mutex
	records map[string]*ServiceHealth
}

func newHealthLedger() *healthLedger {
	return &healthLedger{records: make(map[string]*ServiceHealth)}
}

func (l *healthLedger) get(service string) *ServiceHealth {
	r, ok := l.records[service]
	if !ok {
		r = &ServiceHealth{Service: service}
		l.records[service] = r
	}
	return r
}

func (l *healthLedger) recordFailure(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.get(service)
	r.Failures++
	r.LastSeen = time.Now()
	l.decay(r)
}

func (l *healthLedger) recordSuccess(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.get(service)
	r.Successes++
	r.LastSeen = time.Now()
	l.decay(r)
}

// decay keeps counters bounded so old history cannot pin the level.
func (l *healthLedger) decay(r *ServiceHealth) {
	const window = 100
	if r.Successes+r.Failures > window {
		r.Successes /= 2
		r.Failures /= 2
	}
}

func (l *healthLedger) snapshot() map[string]ServiceHealth {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]ServiceHealth, len(l.records))
	for name, r := range l.records {
		out[name] = *r
	}
	return out
}

// level maps the count of failing services to a degradation level.
// The LLM service failing is weighted as major on its own since no
// guidance can be generated without it.
func (l *healthLedger) level() DegradationLevel {
	l.mu.Lock()
	defer l.mu.Unlock()

	failing := 0
	total := len(l.records)
	llmDown := false
	for name, r := range l.records {
		if r.Failing() {
			failing++
			if name == "llm_service" {
				llmDown = true
			}
		}
	}

	switch {
	case failing == 0:
		return FullService
	case total > 0 && failing >= total:
		return EmergencyMode
	case llmDown && failing > 1:
		return MinimalService
	case llmDown || failing > 1:
		return MajorDegradation
	default:
		return MinorDegradation
	}
}

// appendUnique appends s to list if not already present.
func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
