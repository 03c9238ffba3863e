// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the guidance service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/vimarsh-ai/vimarsh/services/guidance/budget"
	"github.com/vimarsh-ai/vimarsh/services/guidance/datatypes"
	"github.com/vimarsh-ai/vimarsh/services/guidance/services"
)

var guidanceTracer = otel.Tracer("vimarsh.guidance.handlers")

// HandleGuidance answers POST /v1/guidance.
func HandleGuidance(svc *services.GuidanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := guidanceTracer.Start(c.Request.Context(), "HandleGuidance")
		defer span.End()

		var req datatypes.GuidanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "invalid request body", Code: "bad_request", Details: err.Error(),
			})
			return
		}

		resp, err := svc.Ask(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			status, code := mapAskError(err)
			if status == http.StatusInternalServerError {
				slog.Error("guidance request failed", "error", err, "personality", req.Personality)
			}
			c.JSON(status, datatypes.ErrorResponse{Error: err.Error(), Code: code})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// mapAskError translates service errors to HTTP status and code.
func mapAskError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnknownPersonality):
		return http.StatusNotFound, "unknown_personality"
	case errors.Is(err, services.ErrQueryBlocked):
		return http.StatusForbidden, "query_blocked"
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests, "budget_exceeded"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
