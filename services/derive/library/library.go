// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package library holds the vocabulary the search draws from.
//
// A Library starts with an ordered list of base Ops and an ordered list of
// Combinators, and grows one derived Op at a time through DeriveNextOp. The
// derivation order is fixed (outer loop over Ops, inner loop over
// Combinators), so seeding a library N times is reproducible.
//
// # Thread Safety
//
// Library is NOT safe for concurrent use. The search mutates it from a
// single goroutine; callers that share a Library must serialize access.
package library

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// Sentinel errors for library operations.
var (
	// ErrLibraryExhausted is returned by DeriveNextOp when every
	// (op, combinator) pair has already been derived.
	ErrLibraryExhausted = errors.New("library exhausted: no underived op/combinator pair")

	// ErrDuplicateOp is returned when two Ops share a name.
	ErrDuplicateOp = errors.New("duplicate op name")

	// ErrUnknownOp is returned by Lookup callers when a name is not registered.
	ErrUnknownOp = errors.New("unknown op")
)

// Options configures a Library.
type Options struct {
	// MaxDepth bounds how many combinator applications a derived Op may
	// carry. Zero means unbounded.
	MaxDepth int

	// Logger receives derivation events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for configuring a Library.
type Option func(*Options)

// WithMaxDepth bounds the nesting depth of derived Ops.
func WithMaxDepth(n int) Option {
	return func(o *Options) {
		o.MaxDepth = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Library is the registry of base Ops, Combinators and derived Ops.
type Library struct {
	ops         []*op.Op
	combinators []*op.Combinator
	derived     []*op.Op

	// children records which combinators have already been applied to an Op.
	children map[*op.Op]map[*op.Combinator]*op.Op
	byName   map[string]*op.Op

	options Options
	logger  *slog.Logger
}

// New creates a Library.
//
// Description:
//
//	Validates every base Op and rejects duplicate names. Malformed Ops are
//	configuration bugs and fail here rather than mid-search.
//
// Inputs:
//
//	ops - Base Ops in search order.
//	combinators - Combinators in derivation order. May be empty.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Library - The library with no derived Ops yet.
//	error - Wraps op.ErrMalformedOp or ErrDuplicateOp.
//
// Example:
//
//	lib, err := library.New(catalog.Default(), catalog.Combinators(),
//	    library.WithMaxDepth(2),
//	)
func New(ops []*op.Op, combinators []*op.Combinator, opts ...Option) (*Library, error) {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	l := &Library{
		ops:         make([]*op.Op, 0, len(ops)),
		combinators: append([]*op.Combinator(nil), combinators...),
		children:    make(map[*op.Op]map[*op.Combinator]*op.Op),
		byName:      make(map[string]*op.Op),
		options:     options,
		logger:      options.Logger.With("component", "library"),
	}

	for _, o := range ops {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if err := l.register(o); err != nil {
			return nil, err
		}
		l.ops = append(l.ops, o)
	}
	for i, c := range l.combinators {
		if c == nil || c.Lift == nil {
			return nil, fmt.Errorf("%w: combinator %d has no lift", op.ErrMalformedOp, i)
		}
	}

	return l, nil
}

func (l *Library) register(o *op.Op) error {
	if _, exists := l.byName[o.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOp, o.Name)
	}
	l.byName[o.Name] = o
	return nil
}

// Ops returns the base Ops followed by every derived Op, in derivation order.
// The returned slice is a copy.
func (l *Library) Ops() []*op.Op {
	out := make([]*op.Op, 0, len(l.ops)+len(l.derived))
	out = append(out, l.ops...)
	out = append(out, l.derived...)
	return out
}

// Combinators returns the configured combinators.
func (l *Library) Combinators() []*op.Combinator {
	return append([]*op.Combinator(nil), l.combinators...)
}

// Size returns the number of Ops (base and derived).
func (l *Library) Size() int {
	return len(l.ops) + len(l.derived)
}

// OpsThatReturn returns the Ops whose return shape equals s.
func (l *Library) OpsThatReturn(s shape.Shape) []*op.Op {
	var out []*op.Op
	for _, o := range l.Ops() {
		if o.Signature.Returns.Equal(s) {
			out = append(out, o)
		}
	}
	return out
}

// OpsCompatibleWith returns the Ops whose primary parameter accepts v.
func (l *Library) OpsCompatibleWith(v any) []*op.Op {
	var out []*op.Op
	for _, o := range l.Ops() {
		if o.Signature.Params[0].Check(v) {
			out = append(out, o)
		}
	}
	return out
}

// Lookup resolves an Op by name.
func (l *Library) Lookup(name string) (*op.Op, bool) {
	o, ok := l.byName[name]
	return o, ok
}

// DeriveNextOp lifts the first (op, combinator) pair not yet combined.
//
// Description:
//
//	Scans Ops() in order and, for each Op, the combinators in order. The
//	first pair without a recorded child is applied; the result is
//	registered, linked to its parent and appended to the derived Ops.
//	Ops already at MaxDepth are skipped.
//
// Outputs:
//
//	*op.Op - The newly derived Op.
//	error - ErrLibraryExhausted if no pair remains, or an error from
//	        validating or registering the derived Op.
func (l *Library) DeriveNextOp() (*op.Op, error) {
	for _, parent := range l.Ops() {
		if l.options.MaxDepth > 0 && parent.Depth >= l.options.MaxDepth {
			continue
		}
		for _, c := range l.combinators {
			if _, done := l.children[parent][c]; done {
				continue
			}

			derived := c.Apply(parent)
			if err := derived.Validate(); err != nil {
				return nil, fmt.Errorf("derive %s from %s: %w", c.Name, parent.Name, err)
			}
			if err := l.register(derived); err != nil {
				return nil, fmt.Errorf("derive %s from %s: %w", c.Name, parent.Name, err)
			}

			if l.children[parent] == nil {
				l.children[parent] = make(map[*op.Combinator]*op.Op)
			}
			l.children[parent][c] = derived
			l.derived = append(l.derived, derived)

			l.logger.Debug("derived op",
				slog.String("op", derived.Name),
				slog.String("signature", derived.Signature.String()),
				slog.Int("depth", derived.Depth))
			return derived, nil
		}
	}
	return nil, ErrLibraryExhausted
}

// Seed derives n Ops.
//
// Outputs:
//
//	int - How many Ops were derived.
//	error - ErrLibraryExhausted if the library ran out before n.
func (l *Library) Seed(n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, err := l.DeriveNextOp(); err != nil {
			return i, err
		}
	}
	return n, nil
}

// Children returns the Ops derived from parent, in combinator order.
func (l *Library) Children(parent *op.Op) []*op.Op {
	var out []*op.Op
	for _, c := range l.combinators {
		if child, ok := l.children[parent][c]; ok {
			out = append(out, child)
		}
	}
	return out
}
