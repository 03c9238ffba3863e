// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
)

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReadyCheck_CriticalReturns503(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	breakers := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig())
	monitor := resilience.NewHealthMonitor(resilience.MonitorConfig{}, breakers, nil, logger)
	monitor.RegisterService("llm_service", func(context.Context) error {
		return errors.New("model unavailable")
	}, resilience.DefaultBreakerConfig())

	router := gin.New()
	router.GET("/ready", ReadyCheck(monitor))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unknown state should still report ready, got %d", w.Code)
	}

	// Fail past the critical threshold.
	for i := 0; i < 6; i++ {
		monitor.CheckNow(context.Background())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when critical, got %d", w.Code)
	}
}

func TestResilienceStatus(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	breakers := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig())
	degradation := resilience.NewDegradationManager(nil, logger)
	monitor := resilience.NewHealthMonitor(resilience.MonitorConfig{}, breakers, degradation, logger)
	monitor.RegisterService("vector_search", func(context.Context) error { return nil },
		resilience.DefaultBreakerConfig())
	analytics := resilience.NewErrorAnalytics(100, nil)

	router := gin.New()
	router.GET("/v1/resilience/status", ResilienceStatus(monitor, breakers, degradation, analytics))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resilience/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	for _, key := range []string{"system", "breakers", "degradation_level", "service_health"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in status body", key)
		}
	}
}
