// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrorEvent is one recorded failure. Events are append-only and the
// store is capped: the oldest events fall off first.
type ErrorEvent struct {
	ID        string        `json:"id"`
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Source    string        `json:"source"`
	Message   string        `json:"message"`
	Pattern   string        `json:"pattern,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// PatternCount names a recurring failure shape and how often it was
// seen in the retained window.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// HealthSnapshot is a derived summary of the retained error history.
type HealthSnapshot struct {
	TotalEvents      int                   `json:"total_events"`
	ByCategory       map[ErrorCategory]int `json:"by_category"`
	BySource         map[string]int        `json:"by_source"`
	CriticalLastHour int                   `json:"critical_last_hour"`
	TopPatterns      []PatternCount        `json:"top_patterns"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// ErrorAnalytics retains a bounded history of classified errors and
// derives health summaries and frequent-pattern reports from it.
//
// # Thread Safety
//
// ErrorAnalytics is safe for concurrent use.
type ErrorAnalytics struct {
	maxEvents  int
	classifier *Classifier

	mu     sync.Mutex
	events []ErrorEvent
}

// NewErrorAnalytics creates a store retaining at most maxEvents
// records (default 1000). The classifier is used to label events with
// their matching pattern name.
func NewErrorAnalytics(maxEvents int, classifier *Classifier) *ErrorAnalytics {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &ErrorAnalytics{
		maxEvents:  maxEvents,
		classifier: classifier,
		events:     make([]ErrorEvent, 0, maxEvents),
	}
}

// Record appends a classified error to the history, evicting the
// oldest event when the cap is reached.
func (a *ErrorAnalytics) Record(ce *ClassifiedError) ErrorEvent {
	event := ErrorEvent{
		ID:        uuid.NewString(),
		Category:  ce.Category,
		Severity:  ce.Severity,
		Source:    ce.Source,
		Message:   ce.Err.Error(),
		Timestamp: ce.ClassifiedAt,
	}
	if a.classifier != nil {
		event.Pattern = a.classifier.matchName(event.Message)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.events) >= a.maxEvents {
		a.events = a.events[1:]
	}
	a.events = append(a.events, event)
	return event
}

// Events returns a copy of the retained history, oldest first.
func (a *ErrorAnalytics) Events() []ErrorEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ErrorEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Snapshot derives a health summary from the retained history.
func (a *ErrorAnalytics) Snapshot() HealthSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := HealthSnapshot{
		TotalEvents: len(a.events),
		ByCategory:  make(map[ErrorCategory]int),
		BySource:    make(map[string]int),
		GeneratedAt: time.Now(),
	}

	hourAgo := time.Now().Add(-time.Hour)
	patterns := make(map[string]int)

	for _, e := range a.events {
		snap.ByCategory[e.Category]++
		snap.BySource[e.Source]++
		if e.Severity == SeverityCritical && e.Timestamp.After(hourAgo) {
			snap.CriticalLastHour++
		}
		if e.Pattern != "" {
			patterns[e.Pattern]++
		}
	}

	for name, count := range patterns {
		snap.TopPatterns = append(snap.TopPatterns, PatternCount{Pattern: name, Count: count})
	}
	sort.Slice(snap.TopPatterns, func(i, j int) bool {
		if snap.TopPatterns[i].Count != snap.TopPatterns[j].Count {
			return snap.TopPatterns[i].Count > snap.TopPatterns[j].Count
		}
		return snap.TopPatterns[i].Pattern < snap.TopPatterns[j].Pattern
	})
	if len(snap.TopPatterns) > 10 {
		snap.TopPatterns = snap.TopPatterns[:10]
	}

	return snap
}
