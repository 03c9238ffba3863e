// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package budget enforces token spend limits on guidance generation.
package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a charge would cross a limit.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Config sets the spend limits. Zero values disable the corresponding
// limit.
type Config struct {
	// DailyTokenLimit caps total tokens across all sessions per UTC
	// day.
	DailyTokenLimit int

	// SessionTokenLimit caps tokens per session.
	SessionTokenLimit int
}

// Usage reports current spend.
type Usage struct {
	Day          string `json:"day"`
	DailyTokens  int    `json:"daily_tokens"`
	DailyLimit   int    `json:"daily_limit,omitempty"`
	SessionCount int    `json:"session_count"`
}

// Tracker accumulates token usage and rejects charges over the
// configured limits. Counters reset at UTC day rollover.
//
// # Thread Safety
//
// Tracker is safe for concurrent use.
type Tracker struct {
	config Config

	mu         sync.Mutex
	day        string
	dailyTotal int
	bySession  map[string]int

	now func() time.Time
}

// NewTracker creates a tracker for the given limits.
func NewTracker(config Config) *Tracker {
	return &Tracker{
		config:    config,
		bySession: make(map[string]int),
		now:       time.Now,
	}
}

// SetLimits swaps the spend limits at runtime. Counters are kept; the
// new limits apply to the next Reserve.
func (t *Tracker) SetLimits(config Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config = config
}

// Reserve checks whether a request estimated at tokens can proceed.
// It does not spend; call Charge with the actual count afterwards.
func (t *Tracker) Reserve(sessionID string, tokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	if t.config.DailyTokenLimit > 0 && t.dailyTotal+tokens > t.config.DailyTokenLimit {
		return ErrBudgetExceeded
	}
	if t.config.SessionTokenLimit > 0 && t.bySession[sessionID]+tokens > t.config.SessionTokenLimit {
		return ErrBudgetExceeded
	}
	return nil
}

// Charge records actual spend for a session. Charges are accepted even
// past the limit so accounting stays truthful; only Reserve rejects.
func (t *Tracker) Charge(sessionID string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	t.dailyTotal += tokens
	t.bySession[sessionID] += tokens
}

// SessionTokens returns the spend recorded for one session today.
func (t *Tracker) SessionTokens(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.bySession[sessionID]
}

// Snapshot reports current usage.
func (t *Tracker) Snapshot() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	return Usage{
		Day:          t.day,
		DailyTokens:  t.dailyTotal,
		DailyLimit:   t.config.DailyTokenLimit,
		SessionCount: len(t.bySession),
	}
}

// rollover resets counters when the UTC day changes. Caller holds the
// lock.
func (t *Tracker) rollover() {
	today := t.now().UTC().Format("2006-01-02")
	if t.day != today {
		t.day = today
		t.dailyTotal = 0
		t.bySession = make(map[string]int)
	}
}
