// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package digraph provides the deduplicating value graph the search expands.
//
// A Digraph holds every distinct value reached during one search session
// (Values) and every Op application that produced one (Arrows). Values are
// unique by deep equality, so the graph stays bounded by the number of
// distinct values rather than the number of derivations.
//
// # Ownership Model
//
// Values and Arrows live in flat arenas addressed by stable IDs. The graph
// grows monotonically and never deletes. Value.Data is shared with Op
// implementations and MUST NOT be mutated by them.
//
// # Cycles
//
// The graph may contain cycles: an Arrow of generation N+1 can produce a
// value equal to one of its ancestors, and self-derivations (an Op returning
// one of its inputs) are kept. Every traversal in this package tracks the
// nodes it has visited.
//
// # Thread Safety
//
// Digraph is NOT safe for concurrent use. One search owns one Digraph.
package digraph

import (
	"errors"

	"github.com/AleutianAI/derive/services/derive/shape"
)

// Sentinel errors for digraph operations.
var (
	// ErrMaxValuesExceeded is returned when a generation would grow the
	// graph past its configured value capacity.
	ErrMaxValuesExceeded = errors.New("maximum value count exceeded")

	// ErrMaxArrowsExceeded is returned when a generation would grow the
	// graph past its configured arrow capacity.
	ErrMaxArrowsExceeded = errors.New("maximum arrow count exceeded")

	// ErrUnsupportedValue is returned when a root value cannot be
	// represented. It is the same error as shape.ErrUnsupportedValue.
	ErrUnsupportedValue = shape.ErrUnsupportedValue

	// ErrValueNotFound is returned when an ID does not address a Value.
	ErrValueNotFound = errors.New("value not found")

	// ErrInconsistent is returned by Validate when the graph breaks one of
	// its structural guarantees.
	ErrInconsistent = errors.New("digraph inconsistent")
)
