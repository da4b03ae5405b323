// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"errors"
	"fmt"
)

// Sentinel errors for search operations.
var (
	// ErrSearchExhausted is returned when the generation budget runs out
	// without reaching the target. It does not prove the target unreachable.
	ErrSearchExhausted = errors.New("search exhausted: generation budget reached")

	// ErrSearchDeadEnd is returned when a generation adds no values and no
	// arrows: no further legal bindings exist.
	ErrSearchDeadEnd = errors.New("search dead end: no new bindings")

	// ErrRoundTrip is returned when an extracted program does not reproduce
	// the example output on the example input.
	ErrRoundTrip = errors.New("program does not reproduce the example")

	// ErrTooFewWaypoints is returned by DeriveChain with fewer than two
	// waypoints.
	ErrTooFewWaypoints = errors.New("chain needs at least two waypoints")
)

// SearchFailure reports why a search stopped without a program.
//
// It unwraps to Reason, so errors.Is(err, ErrSearchExhausted) and
// errors.Is(err, ErrSearchDeadEnd) work on it.
type SearchFailure struct {
	// Reason is ErrSearchExhausted, ErrSearchDeadEnd or a graph limit error.
	Reason error

	// Generations is the number of generations run.
	Generations int

	// Values and Arrows are the final graph size.
	Values int
	Arrows int
}

func (f *SearchFailure) Error() string {
	return fmt.Sprintf("%v (after %d generations, %d values, %d arrows)",
		f.Reason, f.Generations, f.Values, f.Arrows)
}

func (f *SearchFailure) Unwrap() error {
	return f.Reason
}

// DeadEnd reports whether the search ran out of bindings rather than budget.
func (f *SearchFailure) DeadEnd() bool {
	return errors.Is(f.Reason, ErrSearchDeadEnd)
}
