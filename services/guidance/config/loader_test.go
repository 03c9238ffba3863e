// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimarsh.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.LLM.Backend != "gemini" {
		t.Errorf("expected gemini default backend, got %q", cfg.LLM.Backend)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file written: %v", err)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimarsh.yaml")
	content := "server:\n  port: \"9090\"\nllm:\n  backend: openai\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %q", cfg.Server.Port)
	}
	if cfg.LLM.Backend != "openai" {
		t.Errorf("expected backend override, got %q", cfg.LLM.Backend)
	}
	// Unset fields keep their defaults.
	if cfg.Resilience.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold, got %d", cfg.Resilience.FailureThreshold)
	}
}

func TestLoad_RejectsInvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimarsh.yaml")
	os.WriteFile(path, []byte("llm:\n  backend: nonsense\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimarsh.yaml")
	os.WriteFile(path, []byte(":\n  - not yaml\n :"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWatcher_ReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vimarsh.yaml")
	os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0644)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w.OnReload(func(c *Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watch loop a moment before writing.
	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte("server:\n  port: \"7070\"\n"), 0644)

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != "7070" {
			t.Errorf("expected reloaded port, got %q", cfg.Server.Port)
		}
		if w.Current().Server.Port != "7070" {
			t.Error("Current should reflect the reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcher_KeepsPreviousOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vimarsh.yaml")
	os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0644)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	os.WriteFile(path, []byte("llm:\n  backend: nonsense\n"), 0644)
	time.Sleep(200 * time.Millisecond)

	if w.Current().Server.Port != "8080" {
		t.Error("invalid edit should not replace the active config")
	}
}
