// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse parses a Weaviate GraphQL response into the
// target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal round trip needed to convert
// Weaviate's dynamic response payload into a strongly-typed struct.
// The target type T must carry json tags matching the response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("SpiritualText").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[SpiritualTextQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, p := range parsed.Get.SpiritualText {
//	    fmt.Println(p.Content)
//	}
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// SpiritualTextQueryResponse is the response shape for SpiritualText
// queries.
type SpiritualTextQueryResponse struct {
	Get struct {
		SpiritualText []SpiritualTextResult `json:"SpiritualText"`
	} `json:"Get"`
}

// SpiritualTextResult is one retrieved passage.
type SpiritualTextResult struct {
	Content     string `json:"content"`
	Source      string `json:"source"`
	Chapter     string `json:"chapter"`
	Verse       string `json:"verse"`
	Personality string `json:"personality"`
	Tradition   string `json:"tradition"`
	Language    string `json:"language"`
	Additional  struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// SpiritualTextProperties is the property set for ingesting a passage.
type SpiritualTextProperties struct {
	Content     string `json:"content"`
	Source      string `json:"source"`
	Chapter     string `json:"chapter"`
	Verse       string `json:"verse"`
	Personality string `json:"personality"`
	Tradition   string `json:"tradition"`
	Language    string `json:"language"`
	IngestedAt  int64  `json:"ingested_at"`
}

// ToMap converts the properties to the map format Weaviate's
// WithProperties method requires.
func (p *SpiritualTextProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":     p.Content,
		"source":      p.Source,
		"chapter":     p.Chapter,
		"verse":       p.Verse,
		"personality": p.Personality,
		"tradition":   p.Tradition,
		"language":    p.Language,
		"ingested_at": p.IngestedAt,
	}
}
