// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package derive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/derive/services/derive/store"
	"github.com/AleutianAI/derive/services/derive/telemetry"
)

func (s *Service) abort(c *gin.Context, err error) {
	status, code := classify(err)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
	} else {
		logger.Info("request rejected",
			slog.String("path", c.FullPath()),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
}

func decodeValue(name string, raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// HealthCheck reports liveness.
func (s *Service) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ops": len(s.Ops())})
}

// ListOps returns the library.
func (s *Service) ListOps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ops": s.Ops()})
}

// CreateProgram derives and stores a program from an example pair.
func (s *Service) CreateProgram(c *gin.Context) {
	var req DeriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	input, err := decodeValue("input", req.Input)
	if err != nil {
		badRequest(c, err)
		return
	}
	output, err := decodeValue("output", req.Output)
	if err != nil {
		badRequest(c, err)
		return
	}

	rec, err := s.Derive(c.Request.Context(), input, output, req.MaxGenerations)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProgramResponse(rec))
}

// ListPrograms returns stored programs without their steps.
func (s *Service) ListPrograms(c *gin.Context) {
	recs, err := s.Programs(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]ProgramResponse, len(recs))
	for i, rec := range recs {
		out[i] = newProgramResponse(rec)
	}
	c.JSON(http.StatusOK, gin.H{"programs": out})
}

// GetProgram returns one stored program.
func (s *Service) GetProgram(c *gin.Context) {
	id, err := store.ParseID(c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	rec, err := s.Program(c.Request.Context(), id)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newProgramResponse(rec))
}

// DeleteProgramHandler removes one stored program.
func (s *Service) DeleteProgramHandler(c *gin.Context) {
	id, err := store.ParseID(c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := s.DeleteProgram(c.Request.Context(), id); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunProgram replays a stored program on a new input.
func (s *Service) RunProgram(c *gin.Context) {
	id, err := store.ParseID(c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	input, err := decodeValue("input", req.Input)
	if err != nil {
		badRequest(c, err)
		return
	}

	out, err := s.Run(c.Request.Context(), id, input)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{Output: newValue(out)})
}

// RateLimit rejects requests beyond limiter's rate with 429.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many derive requests",
				Code:  CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
