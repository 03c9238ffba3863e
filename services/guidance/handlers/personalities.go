// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
)

// ListPersonalities answers GET /v1/personalities with the public view
// of every registered persona.
func ListPersonalities(registry *personality.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		personas := registry.List()
		out := make([]datatypes.PersonalityInfo, 0, len(personas))
		for _, p := range personas {
			out = append(out, datatypes.PersonalityInfo{
				ID:          p.ID,
				Name:        p.Name,
				Tradition:   p.Tradition,
				Description: p.Description,
				Domains:     p.Domains,
			})
		}
		c.JSON(http.StatusOK, gin.H{"personalities": out})
	}
}

// GetPersonality answers GET /v1/personalities/:id including the
// session greeting.
func GetPersonality(registry *personality.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := registry.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
				Error: "unknown personality", Code: "unknown_personality",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"personality": datatypes.PersonalityInfo{
				ID:          p.ID,
				Name:        p.Name,
				Tradition:   p.Tradition,
				Description: p.Description,
				Domains:     p.Domains,
			},
			"greeting": p.Greeting,
		})
	}
}
