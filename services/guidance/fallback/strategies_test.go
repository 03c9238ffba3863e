// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
	"github.com/vimarsh-ai/vimarsh/services/guidance/cache"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
	"github.com/vimarsh-ai/vimarsh/services/llm"
)

// mockLLM is a function-field fake for the LLMClient interface.
type mockLLM struct {
	GenerateFunc func(ctx context.Context, system, prompt string, params llm.GenerationParams) (*llm.Result, error)
	model        string
}

func (m *mockLLM) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (*llm.Result, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt, params)
	}
	return &llm.Result{Content: "mock guidance", Model: m.model}, nil
}

func (m *mockLLM) ModelName() string { return m.model }

func testCache(t *testing.T) *cache.ResponseCache {
	t.Helper()
	c, err := cache.New(cache.Config{InMemory: true, TTL: time.Hour})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachedResponses_HitAndMiss(t *testing.T) {
	c := testCache(t)
	s := &CachedResponses{Cache: c}
	fctx := &resilience.FallbackContext{Query: "what is dharma?", Personality: "krishna"}

	if !s.Applicable(nil, fctx) {
		t.Fatal("expected applicable with query and personality")
	}
	if _, err := s.Execute(context.Background(), fctx); err == nil {
		t.Fatal("expected miss error on empty cache")
	}

	c.Set("krishna", "what is dharma?", &cache.CachedResponse{Content: "duty without attachment"})
	resp, err := s.Execute(context.Background(), fctx)
	if err != nil {
		t.Fatalf("expected hit, got %v", err)
	}
	if resp.Content != "duty without attachment" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
}

func TestTemplateResponses_TopicMatching(t *testing.T) {
	s := &TemplateResponses{Registry: personality.DefaultRegistry()}

	tests := []struct {
		query string
		topic string
	}{
		{"I feel so much anxiety about work", "anxious"},
		{"what is my purpose in life", "purpose"},
		{"I had a fight with my family", "relationship"},
		{"how do I cope with this grief", "loss"},
	}

	for _, tc := range tests {
		fctx := &resilience.FallbackContext{Query: tc.query, Personality: "buddha"}
		if !s.Applicable(nil, fctx) {
			t.Fatalf("%q: expected a topic match", tc.query)
		}
		resp, err := s.Execute(context.Background(), fctx)
		if err != nil {
			t.Fatalf("%q: %v", tc.query, err)
		}
		if resp.Metadata["template"] != tc.topic {
			t.Errorf("%q: expected topic %q, got %q", tc.query, tc.topic, resp.Metadata["template"])
		}
		if resp.Content == "" {
			t.Errorf("%q: empty content", tc.query)
		}
	}
}

func TestTemplateResponses_NotApplicableWithoutTopicMatch(t *testing.T) {
	s := &TemplateResponses{Registry: personality.DefaultRegistry()}
	fctx := &resilience.FallbackContext{Query: "tell me something wise", Personality: "buddha"}

	if s.Applicable(nil, fctx) {
		t.Error("queries matching no topic must fall through to lower rungs")
	}
}

func TestTemplateResponses_NotApplicableForUnknownPersona(t *testing.T) {
	s := &TemplateResponses{Registry: personality.DefaultRegistry()}
	fctx := &resilience.FallbackContext{Query: "q", Personality: "socrates"}

	if s.Applicable(nil, fctx) {
		t.Error("unknown persona should not be applicable")
	}
}

func TestSimplifiedReasoning_OnlyWhenModelUp(t *testing.T) {
	s := &SimplifiedReasoning{Client: &mockLLM{model: "gemini-2.0-flash"}}
	fctx := &resilience.FallbackContext{Query: "why do I suffer?"}

	if s.Applicable([]string{LLMServiceName}, fctx) {
		t.Error("should not be applicable when the model itself failed")
	}
	if !s.Applicable([]string{VectorServiceName}, fctx) {
		t.Error("should be applicable when only retrieval failed")
	}

	resp, err := s.Execute(context.Background(), fctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Metadata["model"] != "gemini-2.0-flash" {
		t.Errorf("expected model metadata, got %v", resp.Metadata)
	}
}

func TestExternalLLM_UsesPersonaPrompt(t *testing.T) {
	var seenSystem string
	client := &mockLLM{
		model: "gpt-4o-mini",
		GenerateFunc: func(_ context.Context, system, prompt string, _ llm.GenerationParams) (*llm.Result, error) {
			seenSystem = system
			return &llm.Result{Content: "external guidance", Model: "gpt-4o-mini"}, nil
		},
	}
	s := &ExternalLLM{Client: client, Registry: personality.DefaultRegistry()}
	fctx := &resilience.FallbackContext{Query: "what is duty?", Personality: "krishna"}

	if !s.Applicable([]string{LLMServiceName}, fctx) {
		t.Fatal("expected applicable when primary model failed")
	}
	if s.Applicable([]string{VectorServiceName}, fctx) {
		t.Error("should not fire when the primary model is healthy")
	}

	resp, err := s.Execute(context.Background(), fctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(seenSystem, "Krishna") {
		t.Errorf("expected persona system prompt, got %q", seenSystem)
	}
	if resp.Metadata["provider"] != "external" {
		t.Errorf("expected provider metadata, got %v", resp.Metadata)
	}
}

func TestExternalLLM_PropagatesProviderFailure(t *testing.T) {
	client := &mockLLM{
		GenerateFunc: func(context.Context, string, string, llm.GenerationParams) (*llm.Result, error) {
			return nil, errors.New("503 service unavailable")
		},
	}
	s := &ExternalLLM{Client: client}

	_, err := s.Execute(context.Background(), &resilience.FallbackContext{Query: "q"})
	if err == nil {
		t.Fatal("expected error so the chain can continue to the next rung")
	}
}

func TestEducationalContent_PerTradition(t *testing.T) {
	s := &EducationalContent{Registry: personality.DefaultRegistry()}

	for _, id := range []string{"krishna", "buddha", "marcus_aurelius", "einstein"} {
		fctx := &resilience.FallbackContext{Personality: id}
		resp, err := s.Execute(context.Background(), fctx)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if resp.Content == "" || resp.Metadata["tradition"] == "" {
			t.Errorf("%s: incomplete response %+v", id, resp)
		}
	}
}

func TestMeditationGuidance_AlwaysWorks(t *testing.T) {
	s := &MeditationGuidance{}

	if !s.Applicable(nil, &resilience.FallbackContext{}) {
		t.Fatal("meditation guidance must always be applicable")
	}
	resp, err := s.Execute(context.Background(), &resilience.FallbackContext{})
	if err != nil || resp.Content == "" {
		t.Fatalf("expected content, got %v / %v", resp, err)
	}
}

func TestHumanEscalation_RequiresEscalationSignal(t *testing.T) {
	s := &HumanEscalation{}

	fctx := &resilience.FallbackContext{
		OriginalError: &resilience.ClassifiedError{ShouldEscalate: false},
	}
	if s.Applicable(nil, fctx) {
		t.Error("should not escalate without the signal")
	}

	fctx.OriginalError.ShouldEscalate = true
	if !s.Applicable(nil, fctx) {
		t.Fatal("expected applicable with the escalation signal")
	}

	var submitted string
	s.Submit = func(_ context.Context, ticketID string, _ *resilience.FallbackContext) error {
		submitted = ticketID
		return nil
	}
	resp, err := s.Execute(context.Background(), fctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Metadata["ticket_id"] == "" || resp.Metadata["ticket_id"] != submitted {
		t.Errorf("ticket id mismatch: %v vs %q", resp.Metadata, submitted)
	}
}

// TestDefaultChain_TopicTemplateServes walks the assembled chain with
// every service down and a query the topic templates cover.
func TestDefaultChain_TopicTemplateServes(t *testing.T) {
	c := testCache(t)
	chain := DefaultChain(c, nil, nil, personality.DefaultRegistry())

	m := resilience.NewDegradationManager(chain, nil)
	resp := m.HandleMultipleFailures(context.Background(),
		[]string{LLMServiceName, VectorServiceName},
		&resilience.FallbackContext{Query: "I feel so much anxiety lately", Personality: "krishna"})

	if resp == nil {
		t.Fatal("expected a response")
	}
	// Cache misses, the topic matches: the second rung should serve.
	if resp.Strategy != "template_responses" {
		t.Errorf("expected template_responses, got %s", resp.Strategy)
	}
}

// TestDefaultChain_ExternalLLMServesWhenPrimaryDown verifies the
// secondary provider rung is reachable when the primary model is the
// failed service and the query matches no template.
func TestDefaultChain_ExternalLLMServesWhenPrimaryDown(t *testing.T) {
	c := testCache(t)
	external := &mockLLM{model: "gpt-4o-mini"}
	chain := DefaultChain(c, nil, external, personality.DefaultRegistry())

	m := resilience.NewDegradationManager(chain, nil)
	resp := m.HandleServiceFailure(context.Background(), LLMServiceName,
		&resilience.FallbackContext{Query: "what is dharma?", Personality: "krishna"}, nil)

	if resp.Strategy != "external_llm" {
		t.Errorf("expected external_llm, got %s", resp.Strategy)
	}
	if resp.Metadata["provider"] != "external" {
		t.Errorf("expected external provider metadata, got %v", resp.Metadata)
	}
}

// TestDefaultChain_EscalationSignalReachesHumanRung verifies an
// escalation verdict produces a ticket instead of static content.
func TestDefaultChain_EscalationSignalReachesHumanRung(t *testing.T) {
	c := testCache(t)
	chain := DefaultChain(c, nil, nil, personality.DefaultRegistry())

	m := resilience.NewDegradationManager(chain, nil)
	resp := m.HandleServiceFailure(context.Background(), LLMServiceName,
		&resilience.FallbackContext{Query: "what is dharma?", Personality: "krishna"},
		&resilience.ClassifiedError{ShouldEscalate: true})

	if resp.Strategy != "human_escalation" {
		t.Errorf("expected human_escalation, got %s", resp.Strategy)
	}
	if resp.Metadata["ticket_id"] == "" {
		t.Error("expected an escalation ticket id")
	}
}

// TestDefaultChain_StaticContentWithoutEscalation verifies that absent
// an escalation signal the chain settles on the educational rung.
func TestDefaultChain_StaticContentWithoutEscalation(t *testing.T) {
	c := testCache(t)
	chain := DefaultChain(c, nil, nil, personality.DefaultRegistry())

	m := resilience.NewDegradationManager(chain, nil)
	resp := m.HandleServiceFailure(context.Background(), LLMServiceName,
		&resilience.FallbackContext{Query: "what is dharma?", Personality: "krishna"}, nil)

	if resp.Strategy != "educational_content" {
		t.Errorf("expected educational_content, got %s", resp.Strategy)
	}
}
