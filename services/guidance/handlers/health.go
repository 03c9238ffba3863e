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

	"github.com/vimarsh-ai/vimarsh/pkg/resilience"
)

// HealthCheck answers GET /health. Liveness only, always 200 while the
// process can serve.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "guidance"})
}

// ReadyCheck answers GET /ready from the health monitor. The process
// reports 503 when every dependency has failed past its thresholds.
func ReadyCheck(monitor *resilience.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := monitor.Status()
		code := http.StatusOK
		if status.Overall == resilience.HealthCritical {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

// ResilienceStatus answers GET /v1/resilience/status with breaker
// snapshots, degradation state, and recent error patterns. Intended
// for operators, not end users.
func ResilienceStatus(monitor *resilience.HealthMonitor, breakers *resilience.BreakerRegistry,
	degradation *resilience.DegradationManager, analytics *resilience.ErrorAnalytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"system":   monitor.Status(),
			"breakers": breakers.Snapshots(),
		}
		if degradation != nil {
			body["degradation_level"] = degradation.Level()
			body["service_health"] = degradation.ServiceHealth()
		}
		if analytics != nil {
			body["errors"] = analytics.Snapshot()
		}
		c.JSON(http.StatusOK, body)
	}
}
