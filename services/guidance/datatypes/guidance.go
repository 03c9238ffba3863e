// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the wire types and Weaviate schema shared by
// the guidance service packages.
package datatypes

import "time"

// GuidanceRequest is the body of POST /v1/guidance.
type GuidanceRequest struct {
	// Query is the user's question.
	Query string `json:"query" binding:"required,min=1,max=2000"`

	// Personality selects the persona answering ("krishna", "buddha",
	// ...). Must be a registered personality id.
	Personality string `json:"personality" binding:"required"`

	// SessionID correlates turns of one conversation. Optional; the
	// server mints one when absent.
	SessionID string `json:"session_id,omitempty"`

	// Language is a BCP-47 tag for the response language. Default "en".
	Language string `json:"language,omitempty"`
}

// CitationRef points the response at a source passage.
type CitationRef struct {
	Source  string `json:"source"`
	Chapter string `json:"chapter,omitempty"`
	Verse   string `json:"verse,omitempty"`
}

// GuidanceResponse is the body returned by POST /v1/guidance.
type GuidanceResponse struct {
	Content     string        `json:"content"`
	Personality string        `json:"personality"`
	SessionID   string        `json:"session_id"`
	Citations   []CitationRef `json:"citations,omitempty"`

	// Degraded marks substitute content served by the fallback chain.
	Degraded bool `json:"degraded"`

	// FallbackStrategy names the strategy that produced degraded
	// content, empty for normal responses.
	FallbackStrategy string `json:"fallback_strategy,omitempty"`

	// CacheHit is true when the answer came from the response cache.
	CacheHit bool `json:"cache_hit"`

	Model       string    `json:"model,omitempty"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PersonalityInfo is one entry of GET /v1/personalities.
type PersonalityInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tradition   string   `json:"tradition"`
	Description string   `json:"description"`
	Domains     []string `json:"domains"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
