// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package op defines the typed vocabulary of the synthesizer.
//
// An Op is a named, typed, pure function usable as one search step. A
// Combinator lifts an Op into a new, differently typed Op; derived Ops
// remember the (combinator, parent) pair that produced them.
//
// # Parameters
//
// Parameter 0 is the primary input and is always bound to a graph Value.
// Parameters 1..n are free: they are bound either to another compatible
// graph Value or to a literal proposed by the parameter's ParamHint.
package op

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/derive/services/derive/shape"
)

// ErrMalformedOp is returned when an Op definition is inconsistent, e.g. its
// declared arity does not match its signature. These are configuration bugs
// and are reported at first use.
var ErrMalformedOp = errors.New("malformed op")

// Impl is the implementation of an Op.
//
// Implementations must be pure and deterministic: equal arguments always
// produce deep-equal results. An Impl may return an error for arguments it
// cannot handle; the search treats that binding as producing nothing.
type Impl func(args ...any) (any, error)

// ParamHint proposes literal candidates for a free parameter, derived from
// the primary input. The returned list must be finite.
type ParamHint func(primary any) []any

// Signature is the parameter and return shapes of an Op.
type Signature struct {
	Params  []shape.Shape
	Returns shape.Shape
}

// String renders the signature, e.g. "(list<string>, string) -> list<list<string>>".
func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + s.Returns.String()
}

// Op is one typed, pure function of the vocabulary.
//
// Ops are compared by pointer identity throughout the search; two Ops with
// the same name are still distinct Ops. The Library keeps names unique.
type Op struct {
	// Name identifies the Op in progress output and stored Programs.
	Name string

	// Signature types the parameters and the result.
	Signature Signature

	// Arity is the number of arguments Impl expects.
	Arity int

	// Impl computes the result.
	Impl Impl

	// ParamHints holds one optional hint per parameter. A nil entry, or a
	// missing trailing entry, means the parameter is graph-bound only.
	ParamHints []ParamHint

	// Parent is the Op this one was lifted from, nil for base Ops.
	Parent *Op

	// Via is the Combinator that produced this Op, nil for base Ops.
	Via *Combinator

	// Depth is the number of combinator applications behind this Op.
	Depth int
}

// Hint returns the ParamHint for parameter i, or nil.
func (o *Op) Hint(i int) ParamHint {
	if i < 0 || i >= len(o.ParamHints) {
		return nil
	}
	return o.ParamHints[i]
}

// Validate checks the Op definition.
//
// Outputs:
//
//	error - Wraps ErrMalformedOp when the name is empty, Impl is nil, the
//	        arity is zero or disagrees with the signature, or there are more
//	        hints than parameters.
func (o *Op) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil op", ErrMalformedOp)
	}
	if o.Name == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedOp)
	}
	if o.Impl == nil {
		return fmt.Errorf("%w: %s has no impl", ErrMalformedOp, o.Name)
	}
	if o.Arity < 1 {
		return fmt.Errorf("%w: %s has arity %d, primary input required", ErrMalformedOp, o.Name, o.Arity)
	}
	if len(o.Signature.Params) != o.Arity {
		return fmt.Errorf("%w: %s declares %d params but impl takes %d",
			ErrMalformedOp, o.Name, len(o.Signature.Params), o.Arity)
	}
	if len(o.ParamHints) > o.Arity {
		return fmt.Errorf("%w: %s has %d hints for %d params",
			ErrMalformedOp, o.Name, len(o.ParamHints), o.Arity)
	}
	return nil
}

// Call invokes the Op after checking the argument count.
func (o *Op) Call(args ...any) (any, error) {
	if len(args) != o.Arity {
		return nil, fmt.Errorf("%w: %s called with %d args, want %d", ErrMalformedOp, o.Name, len(args), o.Arity)
	}
	return o.Impl(args...)
}

// String returns the name followed by the signature.
func (o *Op) String() string {
	return o.Name + " " + o.Signature.String()
}
