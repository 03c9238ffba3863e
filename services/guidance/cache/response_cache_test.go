// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *ResponseCache {
	t.Helper()
	c, err := New(Config{InMemory: true, TTL: time.Hour})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestResponseCache_SetGet(t *testing.T) {
	c := newTestCache(t)

	stored := &CachedResponse{
		Content:     "The Gita teaches detachment from outcomes.",
		Personality: "krishna",
		Model:       "gemini-2.0-flash",
	}
	if err := c.Set("krishna", "what is detachment?", stored); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get("krishna", "what is detachment?")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != stored.Content {
		t.Errorf("content mismatch: %q", got.Content)
	}
	if got.StoredAt.IsZero() {
		t.Error("expected StoredAt to be populated")
	}
}

func TestResponseCache_Miss(t *testing.T) {
	c := newTestCache(t)

	if _, err := c.Get("buddha", "never asked"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestResponseCache_KeyNormalization(t *testing.T) {
	c := newTestCache(t)

	c.Set("krishna", "What   is  Dharma?", &CachedResponse{Content: "duty"})

	if _, err := c.Get("krishna", "what is dharma?"); err != nil {
		t.Errorf("expected rephrasing-insensitive hit, got %v", err)
	}
}

func TestResponseCache_KeysSeparateByPersonality(t *testing.T) {
	c := newTestCache(t)

	c.Set("krishna", "what is suffering?", &CachedResponse{Content: "from krishna"})

	if _, err := c.Get("buddha", "what is suffering?"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss for another personality, got %v", err)
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key("krishna", "what is dharma")
	b := Key("krishna", "WHAT IS   DHARMA")
	if a != b {
		t.Errorf("expected normalized keys to match: %s vs %s", a, b)
	}
	if Key("buddha", "what is dharma") == a {
		t.Error("personality must participate in the key")
	}
}
