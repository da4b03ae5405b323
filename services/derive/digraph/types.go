// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package digraph

import (
	"log/slog"
	"time"

	"github.com/AleutianAI/derive/services/derive/op"
)

const (
	// DefaultMaxValues is the default maximum number of values a graph can hold.
	DefaultMaxValues = 1_000_000

	// DefaultMaxArrows is the default maximum number of arrows a graph can hold.
	DefaultMaxArrows = 10_000_000
)

// ValueID addresses a Value in its Digraph. IDs are dense and allocation
// ordered: the root is always 0.
type ValueID int

// ArrowID addresses an Arrow in its Digraph, in creation order.
type ArrowID int

// Value is one distinct data value reached during the search.
type Value struct {
	// ID is the stable arena index.
	ID ValueID

	// Data is the normalized runtime value.
	Data any

	// Literal is true when a ParamHint created this value. It is not
	// updated when a hint later proposes an existing value; which bindings
	// came from a hint is recorded on each Arrow.
	Literal bool

	// Generation is the generation that allocated the value (0 for the root).
	Generation int

	// In holds the Arrows producing this value, oldest first.
	In []ArrowID

	// Out holds the Arrows consuming this value, oldest first.
	Out []ArrowID
}

// Arrow records one application of an Op.
type Arrow struct {
	// ID is the stable arena index.
	ID ArrowID

	// Op is the applied Op.
	Op *op.Op

	// Inputs are the bound arguments, parameter order.
	Inputs []ValueID

	// LiteralInputs marks the inputs bound from a parameter hint rather
	// than from the graph. Nil when no input came from a hint.
	LiteralInputs []bool

	// Output is the resulting value.
	Output ValueID

	// Generation is the generation that created the arrow.
	Generation int
}

// SelfDerived reports whether the arrow outputs one of its own inputs.
// LiteralInput reports whether input i was bound from a parameter hint.
func (a *Arrow) LiteralInput(i int) bool {
	return i < len(a.LiteralInputs) && a.LiteralInputs[i]
}

func (a *Arrow) SelfDerived() bool {
	for _, in := range a.Inputs {
		if in == a.Output {
			return true
		}
	}
	return false
}

// OpSource supplies the Ops of one generation.
// *library.Library satisfies it.
type OpSource interface {
	Ops() []*op.Op
}

// Callback observes every Arrow a generation creates.
//
// novel is true when out was allocated by this Arrow. Returning true stops
// the generation immediately; no further tuples are evaluated.
type Callback func(out *Value, arrow *Arrow, novel bool) (stop bool)

// GenerationStats summarizes one call to Expand.
type GenerationStats struct {
	// Generation is the number of the generation that ran.
	Generation int

	// Ops is the number of Ops considered.
	Ops int

	// NewValues counts values allocated, hint literals included.
	NewValues int

	// NewArrows counts arrows created.
	NewArrows int

	// Duplicates counts tuples skipped because the same application exists.
	Duplicates int

	// Rejected counts tuples whose Impl failed or returned an unsupported value.
	Rejected int

	// Stopped is true when the callback ended the generation early.
	Stopped bool

	// Duration is the wall time of the generation.
	Duration time.Duration
}

// Progressed reports whether the generation grew the graph.
func (s GenerationStats) Progressed() bool {
	return s.NewValues > 0 || s.NewArrows > 0
}

// GraphOptions configures Digraph limits.
type GraphOptions struct {
	// MaxValues is the maximum number of values the graph can hold.
	// Default: 1,000,000
	MaxValues int

	// MaxArrows is the maximum number of arrows the graph can hold.
	// Default: 10,000,000
	MaxArrows int

	// Logger receives per-arrow debug output. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxValues: DefaultMaxValues,
		MaxArrows: DefaultMaxArrows,
	}
}

// GraphOption is a functional option for configuring Digraph.
type GraphOption func(*GraphOptions)

// WithMaxValues sets the maximum number of values the graph can hold.
func WithMaxValues(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxValues = n
	}
}

// WithMaxArrows sets the maximum number of arrows the graph can hold.
func WithMaxArrows(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxArrows = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GraphOption {
	return func(o *GraphOptions) {
		o.Logger = logger
	}
}
