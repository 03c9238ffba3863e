// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the model client interface and provider
// adapters for guidance generation.
package llm

import "context"

// GenerationParams are the provider-independent sampling knobs.
// Nil pointer fields mean "provider default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Citation points a response back at a source passage.
type Citation struct {
	Source  string `json:"source"`
	Chapter string `json:"chapter,omitempty"`
	Verse   string `json:"verse,omitempty"`
}

// Result is a completed generation with its accounting metadata.
// Token counts feed the budget tracker; Citations come from the
// retrieval context the prompt was grounded on.
type Result struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	Citations    []Citation `json:"citations,omitempty"`
	CacheHit     bool       `json:"cache_hit"`
}

// LLMClient is the standard interface for any model backend.
type LLMClient interface {
	// Generate produces a completion for prompt with system as the
	// persona instruction. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (*Result, error)

	// ModelName reports the configured model identifier for logging
	// and budget accounting.
	ModelName() string
}
