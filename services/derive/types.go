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
	"math"
	"strings"
	"time"

	"github.com/AleutianAI/derive/services/derive/shape"
	"github.com/AleutianAI/derive/services/derive/store"
)

// =============================================================================
// Requests
// =============================================================================

// DeriveRequest is the body of POST /v1/derive/programs.
type DeriveRequest struct {
	// Input and Output are the example pair, as JSON values.
	Input  json.RawMessage `json:"input" binding:"required"`
	Output json.RawMessage `json:"output" binding:"required"`

	// MaxGenerations overrides the budget, up to the server maximum.
	MaxGenerations int `json:"max_generations" binding:"gte=0,lte=64"`
}

// RunRequest is the body of POST /v1/derive/programs/:id/run.
type RunRequest struct {
	Input json.RawMessage `json:"input" binding:"required"`
}

// =============================================================================
// Responses
// =============================================================================

// ProgramResponse describes a stored program.
type ProgramResponse struct {
	ID          string    `json:"id"`
	Expression  string    `json:"expression"`
	Steps       []string  `json:"steps,omitempty"`
	Input       *Value    `json:"input,omitempty"`
	Output      *Value    `json:"output,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Generations int       `json:"generations"`
	Values      int       `json:"values"`
	Arrows      int       `json:"arrows"`
	DurationMs  float64   `json:"duration_ms"`
}

// RunResponse is the result of replaying a program.
type RunResponse struct {
	Output Value `json:"output"`
}

// Value carries a runtime value. JSON cannot hold NaN or infinities, so
// Formatted always renders the value and JSON is omitted when it would
// not encode.
type Value struct {
	JSON      any    `json:"json,omitempty"`
	Formatted string `json:"formatted"`
}

func newValue(v any) Value {
	out := Value{Formatted: shape.Format(v)}
	if jsonSafe(v) {
		out.JSON = v
	}
	return out
}

func jsonSafe(v any) bool {
	switch tv := v.(type) {
	case float64:
		return !math.IsNaN(tv) && !math.IsInf(tv, 0)
	case []any:
		for _, el := range tv {
			if !jsonSafe(el) {
				return false
			}
		}
	case map[string]any:
		for _, el := range tv {
			if !jsonSafe(el) {
				return false
			}
		}
	case shape.Func:
		return false
	}
	return true
}

func newProgramResponse(rec store.Record) ProgramResponse {
	resp := ProgramResponse{
		ID:          rec.ID.String(),
		Expression:  rec.Expression,
		CreatedAt:   rec.CreatedAt,
		Generations: rec.Meta.Generations,
		Values:      rec.Meta.Values,
		Arrows:      rec.Meta.Arrows,
		DurationMs:  float64(rec.Meta.Duration) / float64(time.Millisecond),
	}
	if p := rec.Program; p != nil {
		resp.Steps = strings.Split(strings.TrimSuffix(p.String(), "\n"), "\n")
		in, out := newValue(p.Input()), newValue(p.Output())
		resp.Input, resp.Output = &in, &out
	}
	return resp
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
