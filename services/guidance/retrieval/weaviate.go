// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
)

const defaultLimit = 5

// WeaviateRetriever searches the SpiritualText class via semantic
// nearText queries.
type WeaviateRetriever struct {
	client *weaviate.Client
}

// NewWeaviateRetriever wraps an existing client. The caller is
// responsible for ensuring the schema exists.
func NewWeaviateRetriever(client *weaviate.Client) *WeaviateRetriever {
	return &WeaviateRetriever{client: client}
}

// Search implements the Retriever interface.
func (r *WeaviateRetriever) Search(ctx context.Context, query string, opts SearchOptions) ([]Passage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})
	if opts.MinCertainty > 0 {
		nearText = nearText.WithCertainty(opts.MinCertainty)
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "chapter"},
		{Name: "verse"},
		{Name: "tradition"},
		{Name: "personality"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(datatypes.SpiritualTextClass).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit)

	if opts.Personality != "" {
		personalityFilter := filters.Where().
			WithPath([]string{"personality"}).
			WithOperator(filters.Equal).
			WithValueText(opts.Personality)
		builder = builder.WithWhere(personalityFilter)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.SpiritualTextQueryResponse](resp)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(parsed.Get.SpiritualText))
	for _, hit := range parsed.Get.SpiritualText {
		p := Passage{
			Content:   hit.Content,
			Source:    hit.Source,
			Chapter:   hit.Chapter,
			Verse:     hit.Verse,
			Tradition: hit.Tradition,
		}
		if hit.Additional.Certainty != nil {
			p.Certainty = *hit.Additional.Certainty
		}
		passages = append(passages, p)
	}

	slog.Debug("retrieved passages",
		"query_len", len(query), "personality", opts.Personality, "hits", len(passages))
	return passages, nil
}

// Ping implements the Retriever interface.
func (r *WeaviateRetriever) Ping(ctx context.Context) error {
	ready, err := r.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness check failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}

var _ Retriever = (*WeaviateRetriever)(nil)
