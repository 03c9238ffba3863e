// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fallback provides the concrete degradation strategies for
// guidance requests. The chain is ordered from closest-to-normal
// (cached real answers) down to static content that needs no
// dependencies at all.
package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
	"github.com/vimarsh-ai/vimarsh/services/guidance/cache"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
	"github.com/vimarsh-ai/vimarsh/services/llm"
)

// LLMServiceName is the failed-service key for the primary model.
const LLMServiceName = "llm_service"

// VectorServiceName is the failed-service key for retrieval.
const VectorServiceName = "vector_search"

// DefaultChain assembles the standard strategy order. Nil dependencies
// disable the strategies that need them.
func DefaultChain(respCache *cache.ResponseCache, primary, external llm.LLMClient, registry *personality.Registry) []resilience.FallbackStrategy {
	return []resilience.FallbackStrategy{
		&CachedResponses{Cache: respCache},
		&TemplateResponses{Registry: registry},
		&SimplifiedReasoning{Client: primary},
		&ExternalLLM{Client: external, Registry: registry},
		// Escalation sits above the static rungs: those are always
		// applicable and would otherwise shadow it.
		&HumanEscalation{},
		&EducationalContent{Registry: registry},
		&MeditationGuidance{},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// Cached responses
// =============================================================================

// CachedResponses serves a previously generated answer for the same
// personality and query.
type CachedResponses struct {
	Cache *cache.ResponseCache
}

func (s *CachedResponses) Name() string { return "cached_responses" }

func (s *CachedResponses) Applicable(_ []string, fctx *resilience.FallbackContext) bool {
	return s.Cache != nil && fctx.Query != "" && fctx.Personality != ""
}

func (s *CachedResponses) Execute(_ context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	cached, err := s.Cache.Get(fctx.Personality, fctx.Query)
	if err != nil {
		return nil, err
	}
	return &resilience.FallbackResponse{
		Content: cached.Content,
		Metadata: map[string]string{
			"cached_at": cached.StoredAt.Format("2006-01-02T15:04:05Z07:00"),
			"model":     cached.Model,
		},
	}, nil
}

// =============================================================================
// Template responses
// =============================================================================

// TemplateResponses serves pre-written guidance in the persona's voice
// matched against broad topic keywords. Queries that match no topic
// fall through to the rungs below.
type TemplateResponses struct {
	Registry *personality.Registry
}

func (s *TemplateResponses) Name() string { return "template_responses" }

func (s *TemplateResponses) Applicable(_ []string, fctx *resilience.FallbackContext) bool {
	if s.Registry == nil || fctx.Personality == "" || !s.Registry.Exists(fctx.Personality) {
		return false
	}
	_, ok := matchTemplate(fctx.Query)
	return ok
}

type template struct {
	keywords []string
	text     string
}

var topicTemplates = []template{
	{
		keywords: []string{"anxious", "anxiety", "worry", "fear", "stress"},
		text: "When the mind is restless, return to what is within your power: your " +
			"attention, your breath, your next action. Fear concerns what has not yet " +
			"come; the present moment is where your strength lives.",
	},
	{
		keywords: []string{"purpose", "meaning", "lost", "direction", "career"},
		text: "Purpose is rarely found by searching the horizon. It grows from doing " +
			"the duty in front of you with full attention and without grasping at " +
			"results. Begin with the nearest right action.",
	},
	{
		keywords: []string{"relationship", "family", "friend", "love", "conflict", "anger"},
		text: "Others act according to their own nature and their own suffering. Meet " +
			"them with patience where you can, with honest boundaries where you must, " +
			"and with compassion always, including for yourself.",
	},
	{
		keywords: []string{"loss", "grief", "death", "mourning"},
		text: "Grief is love with nowhere to go. Let it move through you without " +
			"judgment. What was real in the bond is not undone by impermanence.",
	},
}

// matchTemplate finds the first topic whose keywords appear in the
// query.
func matchTemplate(query string) (template, bool) {
	lower := strings.ToLower(query)
	for _, t := range topicTemplates {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t, true
			}
		}
	}
	return template{}, false
}

func (s *TemplateResponses) Execute(_ context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	p, err := s.Registry.Get(fctx.Personality)
	if err != nil {
		return nil, err
	}

	t, ok := matchTemplate(fctx.Query)
	if !ok {
		return nil, fmt.Errorf("no template matches the query")
	}

	return &resilience.FallbackResponse{
		Content:  fmt.Sprintf("%s %s", p.Greeting, t.text),
		Metadata: map[string]string{"template": t.keywords[0], "personality": p.ID},
	}, nil
}

// =============================================================================
// Simplified reasoning
// =============================================================================

// SimplifiedReasoning re-asks the primary model with a short prompt
// and no retrieval context. Applicable only when the model itself is
// still up (e.g. retrieval failed).
type SimplifiedReasoning struct {
	Client llm.LLMClient
}

func (s *SimplifiedReasoning) Name() string { return "simplified_reasoning" }

func (s *SimplifiedReasoning) Applicable(failed []string, fctx *resilience.FallbackContext) bool {
	return s.Client != nil && fctx.Query != "" && !contains(failed, LLMServiceName)
}

func (s *SimplifiedReasoning) Execute(ctx context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	system := "Give brief, compassionate spiritual guidance in two or three sentences. " +
		"Do not cite specific texts."
	maxTokens := 256
	result, err := s.Client.Generate(ctx, system, fctx.Query, llm.GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		return nil, fmt.Errorf("simplified generation failed: %w", err)
	}
	return &resilience.FallbackResponse{
		Content:  result.Content,
		Metadata: map[string]string{"model": result.Model},
	}, nil
}

// =============================================================================
// External LLM
// =============================================================================

// ExternalLLM routes the request to the secondary provider when the
// primary model is down.
type ExternalLLM struct {
	Client   llm.LLMClient
	Registry *personality.Registry
}

func (s *ExternalLLM) Name() string { return "external_llm" }

func (s *ExternalLLM) Applicable(failed []string, fctx *resilience.FallbackContext) bool {
	return s.Client != nil && fctx.Query != "" && contains(failed, LLMServiceName)
}

func (s *ExternalLLM) Execute(ctx context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	system := "Give brief, compassionate spiritual guidance."
	if s.Registry != nil && fctx.Personality != "" {
		if p, err := s.Registry.Get(fctx.Personality); err == nil {
			system = p.SystemPrompt
		}
	}
	maxTokens := 512
	result, err := s.Client.Generate(ctx, system, fctx.Query, llm.GenerationParams{MaxTokens: &maxTokens})
	if err != nil {
		return nil, fmt.Errorf("external provider failed: %w", err)
	}
	return &resilience.FallbackResponse{
		Content:  result.Content,
		Metadata: map[string]string{"model": result.Model, "provider": "external"},
	}, nil
}

// =============================================================================
// Educational content
// =============================================================================

// EducationalContent serves a static teaching about the persona's
// tradition when no model is reachable.
type EducationalContent struct {
	Registry *personality.Registry
}

func (s *EducationalContent) Name() string { return "educational_content" }

func (s *EducationalContent) Applicable(_ []string, fctx *resilience.FallbackContext) bool {
	return s.Registry != nil && fctx.Personality != "" && s.Registry.Exists(fctx.Personality)
}

var traditionLessons = map[string]string{
	"hindu": "The Bhagavad Gita's central teaching is nishkama karma: act wholeheartedly " +
		"in your duty while releasing attachment to the fruits of action (Gita 2.47).",
	"buddhist": "The Buddha taught that suffering arises from craving, and that the " +
		"Eightfold Path, right view through right concentration, leads to its end.",
	"christian": "At the heart of the Gospels is the commandment to love God and to " +
		"love your neighbor as yourself; forgiveness is its daily practice.",
	"sufi": "Sufism teaches that the heart polished by remembrance becomes a mirror " +
		"for the divine; longing itself is the path.",
	"taoist": "The Tao Te Ching teaches wu wei: aligned, effortless action that " +
		"accomplishes without forcing, like water finding its way.",
	"confucian": "Confucian practice begins at home: cultivate personal virtue, honor " +
		"your relationships, and order in the wider world follows.",
	"stoic": "Stoicism distinguishes what is up to us, our judgments and choices, from " +
		"what is not. Peace comes from placing your good entirely in the former.",
	"scientific": "The scientific spirit is disciplined wonder: hold beliefs lightly, " +
		"test them honestly, and let nature be the final arbiter.",
	"historical": "History's steadiest lesson is that character is forged in adversity; " +
		"patience and principle outlast the crisis of the moment.",
}

func (s *EducationalContent) Execute(_ context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	p, err := s.Registry.Get(fctx.Personality)
	if err != nil {
		return nil, err
	}
	lesson, ok := traditionLessons[p.Tradition]
	if !ok {
		return nil, fmt.Errorf("no educational content for tradition %q", p.Tradition)
	}
	content := fmt.Sprintf("While %s is temporarily unavailable, here is a teaching from "+
		"this tradition. %s", p.Name, lesson)
	return &resilience.FallbackResponse{
		Content:  content,
		Metadata: map[string]string{"tradition": p.Tradition},
	}, nil
}

// =============================================================================
// Meditation guidance
// =============================================================================

// MeditationGuidance offers a breathing practice that needs no
// dependencies at all.
type MeditationGuidance struct{}

func (s *MeditationGuidance) Name() string { return "meditation_guidance" }

func (s *MeditationGuidance) Applicable([]string, *resilience.FallbackContext) bool { return true }

func (s *MeditationGuidance) Execute(context.Context, *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	return &resilience.FallbackResponse{
		Content: "While our guidance service recovers, try this brief practice: sit " +
			"comfortably and breathe in slowly for four counts, hold for four, and " +
			"release for six. Repeat this for ten breaths, letting your question rest " +
			"gently in the background. Then return and ask again.",
	}, nil
}

// =============================================================================
// Human escalation
// =============================================================================

// HumanEscalation records a ticket for follow-up. It fires only on an
// escalation verdict and sits above the static content rungs, which
// are applicable for every request and would otherwise shadow it.
type HumanEscalation struct {
	// Submit files the ticket with an external system. Nil means the
	// ticket id is only logged with the response.
	Submit func(ctx context.Context, ticketID string, fctx *resilience.FallbackContext) error
}

func (s *HumanEscalation) Name() string { return "human_escalation" }

func (s *HumanEscalation) Applicable(_ []string, fctx *resilience.FallbackContext) bool {
	if fctx.OriginalError != nil && fctx.OriginalError.ShouldEscalate {
		return true
	}
	// Without an escalation signal this rung stays out of the chain;
	// the static content rungs below it guarantee a response.
	return false
}

func (s *HumanEscalation) Execute(ctx context.Context, fctx *resilience.FallbackContext) (*resilience.FallbackResponse, error) {
	ticketID := uuid.NewString()
	if s.Submit != nil {
		if err := s.Submit(ctx, ticketID, fctx); err != nil {
			return nil, fmt.Errorf("escalation submit failed: %w", err)
		}
	}
	return &resilience.FallbackResponse{
		Content: "Our service is experiencing sustained difficulties and your request " +
			"has been escalated to our team. Please try again later; we apologize for " +
			"the interruption to your practice.",
		Metadata: map[string]string{"ticket_id": ticketID},
	}, nil
}
