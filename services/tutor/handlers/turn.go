// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/engine"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/sessions"
)

var turnTracer = otel.Tracer("aleutian.tutor.handlers")

// HandleTurn processes one student turn for a session.
//
// Description:
//
//	Binds and validates the request, serializes turns within the session,
//	applies the per-session rate limit, and delegates to the engine. The
//	engine never fails a turn, so the only error statuses here are binding
//	and rate-limit rejections.
func HandleTurn(eng *engine.Engine, reg *sessions.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := turnTracer.Start(c.Request.Context(), "HandleTurn")
		defer span.End()

		var req datatypes.TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the turn request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Turn request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request fields"})
			return
		}

		if !reg.Allow(req.SessionID) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many turns, slow down"})
			return
		}

		// One turn at a time per session; concurrent turns on the same
		// state would race the state machine.
		release := reg.Acquire(req.SessionID)
		defer release()

		result := eng.ProcessTurn(ctx, req.Utterance, req.State, req.Preferences)
		c.JSON(http.StatusOK, result)
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
