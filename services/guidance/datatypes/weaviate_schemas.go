// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// SpiritualTextClass is the Weaviate class holding source passages.
const SpiritualTextClass = "SpiritualText"

// GetSpiritualTextSchema returns the class definition for source
// passages (Bhagavad Gita verses, sutras, letters, meditations).
func GetSpiritualTextSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       SpiritualTextClass,
		Description: "A passage from a spiritual or philosophical source text.",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The passage text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The source work (e.g., 'Bhagavad Gita', 'Dhammapada').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chapter",
				DataType:        []string{"text"},
				Description:     "Chapter or section identifier.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "verse",
				DataType:        []string{"text"},
				Description:     "Verse or passage identifier within the chapter.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "personality",
				DataType:        []string{"text"},
				Description:     "Personality id this passage is attributed to or associated with.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "tradition",
				DataType:        []string{"text"},
				Description:     "Tradition the text belongs to (e.g., 'hindu', 'buddhist', 'stoic').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "language",
				DataType:        []string{"text"},
				Description:     "BCP-47 language tag of the passage.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds timestamp of ingestion.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates the SpiritualText class if it does not
// exist yet. Safe to call on every startup.
func EnsureWeaviateSchema(client *weaviate.Client) {
	ctx := context.Background()

	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(SpiritualTextClass).Do(ctx)
	if err != nil {
		slog.Error("Failed to check Weaviate schema", "class", SpiritualTextClass, "error", err)
		return
	}
	if exists {
		slog.Debug("Weaviate class already present", "class", SpiritualTextClass)
		return
	}

	if err := client.Schema().ClassCreator().
		WithClass(GetSpiritualTextSchema()).Do(ctx); err != nil {
		slog.Error("Failed to create Weaviate class", "class", SpiritualTextClass, "error", err)
		return
	}
	slog.Info("Created Weaviate class", "class", SpiritualTextClass)
}
