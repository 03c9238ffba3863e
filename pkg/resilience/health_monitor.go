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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthState classifies how a monitored service is doing.
type HealthState string

const (
	// HealthHealthy means recent checks are passing.
	HealthHealthy HealthState = "healthy"

	// HealthDegraded means checks are flapping but the service still
	// answers sometimes.
	HealthDegraded HealthState = "degraded"

	// HealthUnhealthy means recent checks are failing.
	HealthUnhealthy HealthState = "unhealthy"

	// HealthCritical means the service has failed enough consecutive
	// checks that its breaker is likely open.
	HealthCritical HealthState = "critical"

	// HealthUnknown means the service has not been checked yet.
	HealthUnknown HealthState = "unknown"
)

// HealthCheckFn probes one service. A nil return means healthy.
type HealthCheckFn func(ctx context.Context) error

// ServiceStatus is the monitor's view of one registered service.
type ServiceStatus struct {
	Name        string      `json:"name"`
	State       HealthState `json:"state"`
	Breaker     string      `json:"breaker_state"`
	ConsecFails int         `json:"consecutive_failures"`
	LastChecked time.Time   `json:"last_checked"`
	LastError   string      `json:"last_error,omitempty"`
	Latency     string      `json:"latency,omitempty"`
}

// SystemStatus aggregates every service plus the overall verdict.
type SystemStatus struct {
	Overall     HealthState      `json:"overall"`
	Degradation DegradationLevel `json:"degradation_level"`
	Services    []ServiceStatus  `json:"services"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// MonitorConfig tunes the polling loop.
type MonitorConfig struct {
	// Interval between poll rounds. Default: 30s.
	Interval time.Duration

	// CheckTimeout bounds each individual health check. Default: 5s.
	CheckTimeout time.Duration

	// DegradedAfter consecutive failures marks a service degraded;
	// UnhealthyAfter marks it unhealthy; CriticalAfter critical.
	// Defaults: 1, 3, 6.
	DegradedAfter  int
	UnhealthyAfter int
	CriticalAfter  int
}

// DefaultMonitorConfig returns the default polling parameters.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:       30 * time.Second,
		CheckTimeout:   5 * time.Second,
		DegradedAfter:  1,
		UnhealthyAfter: 3,
		CriticalAfter:  6,
	}
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 5 * time.Second
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = 1
	}
	if c.UnhealthyAfter <= 0 {
		c.UnhealthyAfter = 3
	}
	if c.CriticalAfter <= 0 {
		c.CriticalAfter = 6
	}
	return c
}

// HealthMonitor polls registered services and exposes per-service and
// system-wide status. It also fronts the breaker registry so callers
// can wrap arbitrary calls with ProtectedCall.
//
// # Description
//
// Monitoring is poll-based, not event-driven: Start runs a ticker loop
// that probes every registered service concurrently. Cancellation is
// cooperative through the context passed to Start.
//
// # Thread Safety
//
// HealthMonitor is safe for concurrent use.
//
// # Example
//
//	mon := NewHealthMonitor(DefaultMonitorConfig(), breakers, degradation, logger)
//	mon.RegisterService("vector_search", retriever.Ping, DefaultBreakerConfig())
//
//	go mon.Start(ctx)
//	defer mon.Stop()
//
//	err := mon.ProtectedCall(ctx, "vector_search", func(ctx context.Context) error {
//	    return retriever.Search(ctx, query)
//	})
type HealthMonitor struct {
	config      MonitorConfig
	breakers    *BreakerRegistry
	degradation *DegradationManager
	logger      *slog.Logger

	mu       sync.RWMutex
	services map[string]*monitoredService
	cancel   context.CancelFunc
	running  bool
}

type monitoredService struct {
	name    string
	check   HealthCheckFn
	state   HealthState
	fails   int
	last    time.Time
	lastErr string
	latency time.Duration
}

// NewHealthMonitor creates a monitor. The degradation manager may be
// nil when only breaker wrapping is needed.
func NewHealthMonitor(config MonitorConfig, breakers *BreakerRegistry, degradation *DegradationManager, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		config:      config.withDefaults(),
		breakers:    breakers,
		degradation: degradation,
		logger:      logger,
		services:    make(map[string]*monitoredService),
	}
}

// RegisterService adds a service to the poll set and ensures its
// breaker exists with the given configuration.
func (m *HealthMonitor) RegisterService(name string, check HealthCheckFn, breakerCfg BreakerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services[name] = &monitoredService{
		name:  name,
		check: check,
		state: HealthUnknown,
	}
	m.breakers.GetWithConfig(name, breakerCfg)
}

// ProtectedCall wraps fn with the named service's circuit breaker and
// feeds the outcome into the degradation ledger.
func (m *HealthMonitor) ProtectedCall(ctx context.Context, service string, fn func(context.Context) error) error {
	err := m.breakers.Get(service).ExecuteCtx(ctx, fn)
	if m.degradation != nil {
		if err == nil {
			m.degradation.RecordSuccess(service)
		}
	}
	return err
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
// An immediate first round runs before the ticker starts so status is
// available right after startup.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.logger.Info("health monitor started", "interval", m.config.Interval)
	m.pollAll(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			m.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.pollAll(ctx)
		}
	}
}

// Stop cancels the poll loop. Safe to call when not running.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// pollAll probes every registered service concurrently.
func (m *HealthMonitor) pollAll(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			m.pollOne(gctx, name)
			return nil
		})
	}
	_ = g.Wait()
}

// pollOne runs a single health check and updates the service record.
func (m *HealthMonitor) pollOne(ctx context.Context, name string) {
	m.mu.RLock()
	svc, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	err := svc.check(checkCtx)
	elapsed := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	svc.last = time.Now()
	svc.latency = elapsed

	if err != nil {
		svc.fails++
		svc.lastErr = err.Error()
	} else {
		svc.fails = 0
		svc.lastErr = ""
	}
	svc.state = m.stateFor(svc.fails)

	if err != nil {
		m.logger.Warn("health check failed",
			"service", name, "consecutive_failures", svc.fails, "error", err)
	}
}

// stateFor maps a consecutive failure count to a health state.
func (m *HealthMonitor) stateFor(fails int) HealthState {
	switch {
	case fails >= m.config.CriticalAfter:
		return HealthCritical
	case fails >= m.config.UnhealthyAfter:
		return HealthUnhealthy
	case fails >= m.config.DegradedAfter:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// CheckNow forces an immediate poll round outside the ticker schedule.
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	m.pollAll(ctx)
}

// Status reports the current system status.
func (m *HealthMonitor) Status() SystemStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := SystemStatus{
		Overall:   HealthHealthy,
		CheckedAt: time.Now(),
	}
	if m.degradation != nil {
		status.Degradation = m.degradation.Level()
	}

	worst := 0
	rank := map[HealthState]int{
		HealthHealthy:   0,
		HealthUnknown:   0,
		HealthDegraded:  1,
		HealthUnhealthy: 2,
		HealthCritical:  3,
	}

	for _, svc := range m.services {
		breakerState := m.breakers.Get(svc.name).State().String()
		entry := ServiceStatus{
			Name:        svc.name,
			State:       svc.state,
			Breaker:     breakerState,
			ConsecFails: svc.fails,
			LastChecked: svc.last,
			LastError:   svc.lastErr,
		}
		if svc.latency > 0 {
			entry.Latency = svc.latency.String()
		}
		status.Services = append(status.Services, entry)

		if rank[svc.state] > worst {
			worst = rank[svc.state]
		}
	}

	for state, r := range rank {
		if r == worst && worst > 0 {
			status.Overall = state
		}
	}
	if worst == 0 {
		status.Overall = HealthHealthy
	}
	return status
}
