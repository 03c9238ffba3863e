// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and watches the guidance service configuration.
package config

import "time"

// Config is the full guidance service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" validate:"required"`
	LLM        LLMConfig        `yaml:"llm" validate:"required"`
	Weaviate   WeaviateConfig   `yaml:"weaviate"`
	Cache      CacheConfig      `yaml:"cache"`
	Budget     BudgetConfig     `yaml:"budget"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required"`
	RequestsPerMin  int           `yaml:"requests_per_min"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig selects the model backends.
type LLMConfig struct {
	// Backend is the primary provider: "gemini" or "openai".
	Backend string `yaml:"backend" validate:"oneof=gemini openai"`

	// FallbackBackend, when set, is wired into the degradation chain
	// as the external-LLM rung.
	FallbackBackend string `yaml:"fallback_backend"`

	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// WeaviateConfig points at the vector store. An empty URL runs the
// service without retrieval.
type WeaviateConfig struct {
	URL          string  `yaml:"url"`
	MinCertainty float32 `yaml:"min_certainty"`
	SearchLimit  int     `yaml:"search_limit"`
}

// CacheConfig configures the embedded response cache.
type CacheConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

// BudgetConfig sets token spend limits. Zero disables a limit.
type BudgetConfig struct {
	DailyTokenLimit   int `yaml:"daily_token_limit"`
	SessionTokenLimit int `yaml:"session_token_limit"`
}

// ResilienceConfig tunes the breaker, retry, and monitor layer.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	BackoffStrategy  string        `yaml:"backoff_strategy"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	LogDir string `yaml:"log_dir"`
	JSON   bool   `yaml:"json"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestsPerMin:  60,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Backend:         "gemini",
			FallbackBackend: "openai",
			Temperature:     0.7,
			MaxTokens:       1024,
		},
		Weaviate: WeaviateConfig{
			MinCertainty: 0.7,
			SearchLimit:  5,
		},
		Cache: CacheConfig{
			Path: "~/.vimarsh/cache",
			TTL:  time.Hour,
		},
		Budget: BudgetConfig{
			DailyTokenLimit:   500_000,
			SessionTokenLimit: 20_000,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      30 * time.Second,
			MaxAttempts:      3,
			BaseDelay:        500 * time.Millisecond,
			BackoffStrategy:  "jittered",
			HealthInterval:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}
