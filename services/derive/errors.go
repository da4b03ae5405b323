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
	"errors"
	"net/http"

	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/program"
	"github.com/AleutianAI/derive/services/derive/search"
	"github.com/AleutianAI/derive/services/derive/shape"
	"github.com/AleutianAI/derive/services/derive/store"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnsupportedValue = "UNSUPPORTED_VALUE"
	CodeNotFound         = "NOT_FOUND"
	CodeSearchExhausted  = "SEARCH_EXHAUSTED"
	CodeSearchDeadEnd    = "SEARCH_DEAD_END"
	CodeSearchLimit      = "SEARCH_LIMIT"
	CodeReplayFailed     = "REPLAY_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, shape.ErrUnsupportedValue):
		return http.StatusBadRequest, CodeUnsupportedValue
	case errors.Is(err, store.ErrProgramNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, search.ErrSearchDeadEnd):
		return http.StatusUnprocessableEntity, CodeSearchDeadEnd
	case errors.Is(err, search.ErrSearchExhausted):
		return http.StatusUnprocessableEntity, CodeSearchExhausted
	case errors.Is(err, digraph.ErrMaxValuesExceeded), errors.Is(err, digraph.ErrMaxArrowsExceeded):
		return http.StatusUnprocessableEntity, CodeSearchLimit
	case errors.Is(err, program.ErrReplayFailed), errors.Is(err, program.ErrReplayIncomplete):
		return http.StatusUnprocessableEntity, CodeReplayFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
