// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
)

func newPersonalityRouter() *gin.Engine {
	registry := personality.DefaultRegistry()
	router := gin.New()
	router.GET("/v1/personalities", ListPersonalities(registry))
	router.GET("/v1/personalities/:id", GetPersonality(registry))
	return router
}

func TestListPersonalities(t *testing.T) {
	router := newPersonalityRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personalities", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Personalities []datatypes.PersonalityInfo `json:"personalities"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Personalities) != 12 {
		t.Errorf("expected 12 personas, got %d", len(body.Personalities))
	}
	for _, p := range body.Personalities {
		if p.ID == "" || p.Name == "" || p.Tradition == "" {
			t.Errorf("incomplete persona: %+v", p)
		}
	}
}

func TestGetPersonality(t *testing.T) {
	router := newPersonalityRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personalities/krishna", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Personality datatypes.PersonalityInfo `json:"personality"`
		Greeting    string                    `json:"greeting"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Personality.ID != "krishna" || body.Greeting == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestGetPersonality_Unknown(t *testing.T) {
	router := newPersonalityRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personalities/socrates", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
