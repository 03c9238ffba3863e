// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the guidance orchestration logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
	"github.com/vimarsh-ai/vimarsh/services/guidance/budget"
	"github.com/vimarsh-ai/vimarsh/services/guidance/cache"
	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/observability"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
	"github.com/vimarsh-ai/vimarsh/services/guidance/retrieval"
	"github.com/vimarsh-ai/vimarsh/services/llm"
)

var guidanceTracer = otel.Tracer("guidance-service")

// ErrUnknownPersonality is returned for an unregistered persona id.
var ErrUnknownPersonality = errors.New("unknown personality")

// ErrQueryBlocked is returned when the safety layer rejects a query.
var ErrQueryBlocked = errors.New("query blocked by safety policy")

// Options carries the tunables the service reads per request.
type Options struct {
	Temperature  float32
	MaxTokens    int
	SearchLimit  int
	MinCertainty float32
}

// Deps wires the guidance service. Retriever, Cache, External, and
// Metrics may be nil; the service degrades gracefully without them.
type Deps struct {
	Registry    *personality.Registry
	Safety      *personality.SafetyChecker
	Retriever   retrieval.Retriever
	Cache       *cache.ResponseCache
	Budget      *budget.Tracker
	Primary     llm.LLMClient
	Retry       *resilience.RetryManager
	Monitor     *resilience.HealthMonitor
	Degradation *resilience.DegradationManager
	Analytics   *resilience.ErrorAnalytics
	ResMetrics  *resilience.Metrics
	Metrics     *observability.GuidanceMetrics
	Logger      *slog.Logger
	Options     Options
}

// GuidanceService runs a guidance request end to end: safety, budget,
// cache, retrieval, generation, and fallback.
//
// # Thread Safety
//
// GuidanceService is safe for concurrent use; all mutable state lives
// in its dependencies.
type GuidanceService struct {
	deps Deps
}

// NewGuidanceService validates required dependencies and returns the
// service.
func NewGuidanceService(deps Deps) (*GuidanceService, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("personality registry is required")
	}
	if deps.Primary == nil {
		return nil, fmt.Errorf("primary LLM client is required")
	}
	if deps.Retry == nil {
		return nil, fmt.Errorf("retry manager is required")
	}
	if deps.Degradation == nil {
		return nil, fmt.Errorf("degradation manager is required")
	}
	if deps.Safety == nil {
		deps.Safety = personality.NewSafetyChecker()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Options.MaxTokens <= 0 {
		deps.Options.MaxTokens = 1024
	}
	if deps.Options.SearchLimit <= 0 {
		deps.Options.SearchLimit = 5
	}
	return &GuidanceService{deps: deps}, nil
}

// Ask answers one guidance request. The returned response is non-nil
// whenever error is nil; degraded content is flagged, never dropped.
func (s *GuidanceService) Ask(ctx context.Context, req *datatypes.GuidanceRequest) (*datatypes.GuidanceResponse, error) {
	ctx, span := guidanceTracer.Start(ctx, "guidance.ask")
	defer span.End()

	start := time.Now()
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveRequests.Inc()
		defer s.deps.Metrics.ActiveRequests.Dec()
	}

	persona, err := s.deps.Registry.Get(req.Personality)
	if err != nil {
		s.observe(req.Personality, observability.StatusError, start)
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersonality, req.Personality)
	}
	span.SetAttributes(attribute.String("personality", persona.ID))

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Safety scan before anything touches the model.
	verdict := s.deps.Safety.CheckQuery(req.Query)
	if verdict.Crisis {
		s.deps.Logger.Warn("crisis query detected", "session_id", sessionID, "rule", verdict.Reason)
		s.observe(persona.ID, observability.StatusBlocked, start)
		return &datatypes.GuidanceResponse{
			Content:     personality.CrisisResponse,
			Personality: persona.ID,
			SessionID:   sessionID,
			GeneratedAt: time.Now(),
		}, nil
	}
	if !verdict.Allowed {
		s.deps.Logger.Info("query blocked", "session_id", sessionID, "rule", verdict.Reason)
		s.observe(persona.ID, observability.StatusBlocked, start)
		return nil, fmt.Errorf("%w (%s)", ErrQueryBlocked, verdict.Reason)
	}

	// Budget gate. Estimate covers the prompt plus the response cap.
	if s.deps.Budget != nil {
		estimate := len(req.Query)/4 + s.deps.Options.MaxTokens
		if err := s.deps.Budget.Reserve(sessionID, estimate); err != nil {
			s.observe(persona.ID, observability.StatusError, start)
			return nil, err
		}
	}

	// Cache lookup.
	if s.deps.Cache != nil {
		if cached, err := s.deps.Cache.Get(persona.ID, req.Query); err == nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveCacheLookup(true)
			}
			s.observe(persona.ID, observability.StatusSuccess, start)
			return &datatypes.GuidanceResponse{
				Content:     cached.Content,
				Personality: persona.ID,
				SessionID:   sessionID,
				Model:       cached.Model,
				CacheHit:    true,
				GeneratedAt: time.Now(),
			}, nil
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveCacheLookup(false)
		}
	}

	// Retrieval. A failure here degrades the prompt, not the request.
	passages, retrievalDown := s.retrieve(ctx, req.Query, persona.ID)

	// Generation under retry + breaker.
	result, genErr := s.generate(ctx, persona, req.Query, passages)
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "generation failed")
		return s.fallback(ctx, persona, req.Query, sessionID, retrievalDown, genErr, start), nil
	}

	// Persona voice check on the way out.
	if rv := s.deps.Safety.CheckResponse(result.Content); !rv.Allowed {
		s.deps.Logger.Warn("response failed voice check, serving fallback",
			"session_id", sessionID, "rule", rv.Reason)
		brokenErr := s.classify(fmt.Errorf("llm response failed voice check: %s", rv.Reason))
		return s.fallback(ctx, persona, req.Query, sessionID, retrievalDown, brokenErr, start), nil
	}

	tokens := result.InputTokens + result.OutputTokens
	if s.deps.Budget != nil {
		s.deps.Budget.Charge(sessionID, tokens)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveTokens(result.Model, result.InputTokens, result.OutputTokens)
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(persona.ID, req.Query, &cache.CachedResponse{
			Content:     result.Content,
			Personality: persona.ID,
			Model:       result.Model,
		}); err != nil {
			s.deps.Logger.Warn("failed to cache response", "error", err)
		}
	}

	citations := make([]datatypes.CitationRef, 0, len(passages))
	for _, p := range passages {
		citations = append(citations, datatypes.CitationRef{
			Source: p.Source, Chapter: p.Chapter, Verse: p.Verse,
		})
	}

	s.observe(persona.ID, observability.StatusSuccess, start)
	return &datatypes.GuidanceResponse{
		Content:     result.Content,
		Personality: persona.ID,
		SessionID:   sessionID,
		Citations:   citations,
		Model:       result.Model,
		TokensUsed:  tokens,
		Degraded:    retrievalDown,
		GeneratedAt: time.Now(),
	}, nil
}

// Greeting returns the persona's session opener.
func (s *GuidanceService) Greeting(personalityID string) (string, error) {
	p, err := s.deps.Registry.Get(personalityID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersonality, personalityID)
	}
	return p.Greeting, nil
}

// retrieve pulls context passages, tolerating retrieval outages.
func (s *GuidanceService) retrieve(ctx context.Context, query, personaID string) ([]retrieval.Passage, bool) {
	if s.deps.Retriever == nil {
		return nil, false
	}

	ctx, span := guidanceTracer.Start(ctx, "guidance.retrieve")
	defer span.End()

	var passages []retrieval.Passage
	search := func(ctx context.Context) error {
		var err error
		passages, err = s.deps.Retriever.Search(ctx, query, retrieval.SearchOptions{
			Personality:  personaID,
			Limit:        s.deps.Options.SearchLimit,
			MinCertainty: s.deps.Options.MinCertainty,
		})
		return err
	}

	var err error
	if s.deps.Monitor != nil {
		err = s.deps.Monitor.ProtectedCall(ctx, "vector_search", search)
	} else {
		err = search(ctx)
	}
	if err != nil {
		span.RecordError(err)
		s.deps.Logger.Warn("retrieval failed, continuing without context", "error", err)
		return nil, true
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RetrievedPassages.Observe(float64(len(passages)))
	}
	return passages, false
}

// generate runs the model call under the retry policy and breaker.
func (s *GuidanceService) generate(ctx context.Context, persona *personality.Personality, query string, passages []retrieval.Passage) (*llm.Result, error) {
	ctx, span := guidanceTracer.Start(ctx, "guidance.generate")
	defer span.End()

	prompt := composePrompt(query, passages)
	params := llm.GenerationParams{MaxTokens: &s.deps.Options.MaxTokens}
	temp := s.deps.Options.Temperature
	if persona.Temperature > 0 {
		temp = persona.Temperature
	}
	if temp > 0 {
		params.Temperature = &temp
	}

	var result *llm.Result
	err := s.deps.Retry.Do(ctx, "llm_service", func(ctx context.Context) error {
		var genErr error
		result, genErr = s.deps.Primary.Generate(ctx, persona.SystemPrompt, prompt, params)
		return genErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fallback produces a degraded response through the fallback chain and
// records the failure for health tracking.
func (s *GuidanceService) fallback(ctx context.Context, persona *personality.Personality, query, sessionID string, retrievalDown bool, cause error, start time.Time) *datatypes.GuidanceResponse {
	fctx := &resilience.FallbackContext{
		Query:       query,
		Personality: persona.ID,
		SessionID:   sessionID,
	}

	classified := s.classify(cause)
	var resp *resilience.FallbackResponse
	if retrievalDown {
		fctx.OriginalError = classified
		resp = s.deps.Degradation.HandleMultipleFailures(ctx, []string{"llm_service", "vector_search"}, fctx)
	} else {
		resp = s.deps.Degradation.HandleServiceFailure(ctx, "llm_service", fctx, classified)
	}

	if s.deps.ResMetrics != nil {
		s.deps.ResMetrics.ObserveFallback(resp)
	}

	s.observe(persona.ID, observability.StatusDegraded, start)
	return &datatypes.GuidanceResponse{
		Content:          resp.Content,
		Personality:      persona.ID,
		SessionID:        sessionID,
		Degraded:         true,
		FallbackStrategy: resp.Strategy,
		GeneratedAt:      time.Now(),
	}
}

// classify normalizes an error into a ClassifiedError for the
// fallback chain and records it for pattern analysis.
func (s *GuidanceService) classify(err error) *resilience.ClassifiedError {
	var ce *resilience.ClassifiedError
	if !errors.As(err, &ce) {
		ce = &resilience.ClassifiedError{
			Err:          err,
			Category:     resilience.CategoryLLMService,
			Severity:     resilience.SeverityHigh,
			Source:       "llm_service",
			Recovery:     resilience.RecoveryFallback,
			ClassifiedAt: time.Now(),
		}
	}
	if s.deps.Analytics != nil {
		s.deps.Analytics.Record(ce)
	}
	if s.deps.ResMetrics != nil {
		s.deps.ResMetrics.ObserveError(ce)
	}
	return ce
}

func (s *GuidanceService) observe(personaID, status string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRequest(personaID, status, time.Since(start))
	}
}

// composePrompt grounds the query in retrieved passages.
func composePrompt(query string, passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString("Relevant passages from the source texts:\n\n")
	for i, p := range passages {
		ref := p.Source
		if p.Chapter != "" {
			ref += " " + p.Chapter
			if p.Verse != "" {
				ref += "." + p.Verse
			}
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, ref, p.Content)
	}
	b.WriteString("\nDrawing on these passages where they apply, answer the seeker's question:\n")
	b.WriteString(query)
	return b.String()
}
