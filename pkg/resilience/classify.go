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
	"regexp"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Taxonomy
// =============================================================================

// ErrorCategory groups failures by their origin.
type ErrorCategory string

const (
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryValidation     ErrorCategory = "validation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryRateLimiting   ErrorCategory = "rate_limiting"
	CategoryLLMService     ErrorCategory = "llm_service"
	CategoryVectorSearch   ErrorCategory = "vector_search"
	CategoryExternalAPI    ErrorCategory = "external_api"
	CategorySystem         ErrorCategory = "system"
	CategoryUnknown        ErrorCategory = "unknown"
)

// ErrorSeverity ranks how urgently a failure needs attention.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// RecoveryStrategy is the classifier's recommendation for what the
// caller should do about a failure.
type RecoveryStrategy string

const (
	// RecoveryRetry: transient; retry with backoff.
	RecoveryRetry RecoveryStrategy = "retry"

	// RecoveryFallback: substitute degraded content via the fallback chain.
	RecoveryFallback RecoveryStrategy = "fallback"

	// RecoveryCircuitBreak: stop calling the dependency for a cooldown.
	RecoveryCircuitBreak RecoveryStrategy = "circuit_break"

	// RecoveryFailFast: not retryable; propagate to the caller.
	RecoveryFailFast RecoveryStrategy = "fail_fast"

	// RecoveryEscalate: needs a human.
	RecoveryEscalate RecoveryStrategy = "escalate"
)

// ClassifiedError wraps an error with its derived category, severity,
// and recovery recommendation.
//
// ShouldAlert and ShouldEscalate are frequency verdicts: a one-off
// medium error is logged and forgotten, the same signature repeating
// inside the classifier's window pages someone.
type ClassifiedError struct {
	// Err is the original error.
	Err error

	// Category is the derived failure origin.
	Category ErrorCategory

	// Severity ranks urgency.
	Severity ErrorSeverity

	// Source names the service/operation the error came from.
	Source string

	// Recovery is the recommended handling strategy.
	Recovery RecoveryStrategy

	// Signature identifies recurring failures (category + source).
	Signature string

	// Occurrences is how many times this signature was seen within
	// the sliding window, including this one.
	Occurrences int

	// ShouldAlert is true when the signature crossed the alert
	// threshold within the window.
	ShouldAlert bool

	// ShouldEscalate is true when the signature crossed the
	// escalation threshold within the window.
	ShouldEscalate bool

	// StatusCode is the HTTP status associated with the failure,
	// zero when not applicable.
	StatusCode int

	// ClassifiedAt is when classification happened.
	ClassifiedAt time.Time
}

// Error implements the error interface.
func (c *ClassifiedError) Error() string {
	return fmt.Sprintf("%s/%s: %v", c.Category, c.Severity, c.Err)
}

// Unwrap exposes the original error to errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Err
}

// Retryable reports whether the recommended strategy permits a retry.
func (c *ClassifiedError) Retryable() bool {
	return c.Recovery == RecoveryRetry
}

// =============================================================================
// Patterns
// =============================================================================

// ErrorPattern matches an error's text against a known failure shape.
// Patterns are evaluated in order; the first match wins.
type ErrorPattern struct {
	// Name labels the pattern in analytics output.
	Name string

	// Regex is matched (case-insensitively) against the error text
	// and the error's Go type name.
	Regex *regexp.Regexp

	Category ErrorCategory
	Severity ErrorSeverity
	Recovery RecoveryStrategy
}

// defaultPatterns is the ordered classification table. Specific shapes
// (auth, rate limits) come before broad ones (network, timeout) so an
// authentication failure inside an HTTP error string is not mistaken
// for a generic network problem.
func defaultPatterns() []ErrorPattern {
	mk := func(name, expr string, cat ErrorCategory, sev ErrorSeverity, rec RecoveryStrategy) ErrorPattern {
		return ErrorPattern{
			Name:     name,
			Regex:    regexp.MustCompile(`(?i)` + expr),
			Category: cat,
			Severity: sev,
			Recovery: rec,
		}
	}

	return []ErrorPattern{
		mk("invalid_api_key", `invalid api key|api key.*(invalid|expired|missing)|unauthenticated|401`, CategoryAuthentication, SeverityCritical, RecoveryFailFast),
		mk("permission_denied", `permission denied|forbidden|not authorized|access denied|403`, CategoryAuthorization, SeverityHigh, RecoveryFailFast),
		mk("rate_limited", `rate limit|too many requests|quota exceeded|resource exhausted|429`, CategoryRateLimiting, SeverityMedium, RecoveryRetry),
		mk("request_timeout", `timeout|timed out|deadline exceeded|context deadline`, CategoryTimeout, SeverityMedium, RecoveryRetry),
		mk("connection_failure", `connection (refused|reset|closed)|no such host|network is unreachable|broken pipe|EOF`, CategoryNetwork, SeverityMedium, RecoveryRetry),
		mk("llm_unavailable", `gemini|generativelanguage|model.*(overloaded|unavailable)|llm.*(error|failed)|completion.*failed`, CategoryLLMService, SeverityHigh, RecoveryFallback),
		mk("vector_search_failure", `weaviate|vector search|nearVector|graphql.*failed|embedding.*failed`, CategoryVectorSearch, SeverityHigh, RecoveryFallback),
		mk("upstream_5xx", `(500|502|503|504)|internal server error|bad gateway|service unavailable`, CategoryExternalAPI, SeverityHigh, RecoveryCircuitBreak),
		mk("invalid_request", `invalid (request|argument|input)|validation failed|bad request|400`, CategoryValidation, SeverityLow, RecoveryFailFast),
		mk("resource_exhausted", `out of memory|no space left|disk full|cannot allocate`, CategorySystem, SeverityCritical, RecoveryEscalate),
	}
}

// =============================================================================
// Classifier
// =============================================================================

// ClassifierConfig tunes the frequency-based alert verdicts. The exact
// thresholds are operational knobs, not correctness requirements.
type ClassifierConfig struct {
	// Window is the sliding window for signature frequency counting.
	// Default: 5 minutes.
	Window time.Duration

	// AlertThreshold is occurrences within the window after which
	// ShouldAlert turns true. Default: 5.
	AlertThreshold int

	// EscalateThreshold is occurrences within the window after which
	// ShouldEscalate turns true. Default: 15.
	EscalateThreshold int
}

// DefaultClassifierConfig returns the default thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Window:            5 * time.Minute,
		AlertThreshold:    5,
		EscalateThreshold: 15,
	}
}

// Classifier derives a ClassifiedError from a raw error using ordered
// pattern matching plus a sliding-window frequency counter.
//
// # Thread Safety
//
// Classifier is safe for concurrent use.
type Classifier struct {
	config   ClassifierConfig
	patterns []ErrorPattern

	mu   sync.Mutex
	seen map[string][]time.Time

	now func() time.Time
}

// NewClassifier creates a classifier with the default pattern table.
func NewClassifier(config ClassifierConfig) *Classifier {
	if config.Window <= 0 {
		config.Window = 5 * time.Minute
	}
	if config.AlertThreshold <= 0 {
		config.AlertThreshold = 5
	}
	if config.EscalateThreshold <= 0 {
		config.EscalateThreshold = 15
	}

	return &Classifier{
		config:   config,
		patterns: defaultPatterns(),
		seen:     make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Classify matches err against the pattern table and records its
// signature in the frequency window.
//
// # Inputs
//
//   - err: The error to classify. Must be non-nil.
//   - source: Service/operation the error came from ("llm_service",
//     "vector_search", ...). Used in the signature.
//   - statusCode: HTTP status if known, zero otherwise. A non-zero
//     code participates in matching alongside the error text.
//
// # Outputs
//
//   - *ClassifiedError: Never nil. Unmatched errors land in
//     CategoryUnknown with a fallback recommendation.
func (c *Classifier) Classify(err error, source string, statusCode int) *ClassifiedError {
	text := err.Error()
	typeName := fmt.Sprintf("%T", err)
	haystack := text + " " + typeName
	if statusCode > 0 {
		haystack = fmt.Sprintf("%s %d", haystack, statusCode)
	}

	// Context errors classify directly; their messages are stable.
	category, severity, recovery := CategoryUnknown, SeverityMedium, RecoveryFallback
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category, severity, recovery = CategoryTimeout, SeverityMedium, RecoveryRetry
	case errors.Is(err, context.Canceled):
		category, severity, recovery = CategoryTimeout, SeverityInfo, RecoveryFailFast
	default:
		for _, p := range c.patterns {
			if p.Regex.MatchString(haystack) {
				category, severity, recovery = p.Category, p.Severity, p.Recovery
				break
			}
		}
	}

	signature := string(category) + ":" + source
	occurrences := c.bump(signature)

	return &ClassifiedError{
		Err:            err,
		Category:       category,
		Severity:       severity,
		Source:         source,
		Recovery:       recovery,
		Signature:      signature,
		Occurrences:    occurrences,
		ShouldAlert:    occurrences >= c.config.AlertThreshold,
		ShouldEscalate: occurrences >= c.config.EscalateThreshold,
		StatusCode:     statusCode,
		ClassifiedAt:   c.now(),
	}
}

// bump records one occurrence of signature and returns the count of
// occurrences still inside the window.
func (c *Classifier) bump(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.config.Window)

	times := c.seen[signature]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	c.seen[signature] = kept

	return len(kept)
}

// WindowCount returns how many occurrences of signature are currently
// inside the sliding window. Intended for health reporting.
func (c *Classifier) WindowCount(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.config.Window)
	count := 0
	for _, t := range c.seen[signature] {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// matchName returns the name of the first pattern matching text, or ""
// when nothing matches. Used by analytics to label recurring failures.
func (c *Classifier) matchName(text string) string {
	lower := strings.ToLower(text)
	for _, p := range c.patterns {
		if p.Regex.MatchString(lower) {
			return p.Name
		}
	}
	return ""
}
