// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval finds source passages relevant to a guidance
// query.
package retrieval

import "context"

// Passage is one retrieved source text chunk.
type Passage struct {
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	Chapter   string  `json:"chapter,omitempty"`
	Verse     string  `json:"verse,omitempty"`
	Tradition string  `json:"tradition,omitempty"`
	Certainty float32 `json:"certainty,omitempty"`
}

// SearchOptions narrows a retrieval query.
type SearchOptions struct {
	// Personality restricts results to passages associated with one
	// persona. Empty means no restriction.
	Personality string

	// Limit caps the result count. Default 5.
	Limit int

	// MinCertainty drops weak matches. Zero means no floor.
	MinCertainty float32
}

// Retriever finds passages relevant to a query.
type Retriever interface {
	// Search returns passages ranked by relevance. An empty result is
	// not an error.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Passage, error)

	// Ping verifies the backing store is reachable. Used by the
	// health monitor.
	Ping(ctx context.Context) error
}
