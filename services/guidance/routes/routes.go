// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the guidance HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
	"github.com/vimarsh-ai/vimarsh/services/guidance/handlers"
	"github.com/vimarsh-ai/vimarsh/services/guidance/middleware"
	"github.com/vimarsh-ai/vimarsh/services/guidance/personality"
	"github.com/vimarsh-ai/vimarsh/services/guidance/services"
)

// Deps collects everything the routes need.
type Deps struct {
	Service     *services.GuidanceService
	Registry    *personality.Registry
	Monitor     *resilience.HealthMonitor
	Breakers    *resilience.BreakerRegistry
	Degradation *resilience.DegradationManager
	Analytics   *resilience.ErrorAnalytics

	// RequestsPerMin throttles each client IP; zero disables.
	RequestsPerMin int
}

// SetupRoutes registers all endpoints on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadyCheck(deps.Monitor))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.NewRateLimiter(deps.RequestsPerMin).Middleware())
	{
		v1.POST("/guidance", handlers.HandleGuidance(deps.Service))
		v1.GET("/personalities", handlers.ListPersonalities(deps.Registry))
		v1.GET("/personalities/:id", handlers.GetPersonality(deps.Registry))
		v1.GET("/resilience/status", handlers.ResilienceStatus(
			deps.Monitor, deps.Breakers, deps.Degradation, deps.Analytics))
	}
}
