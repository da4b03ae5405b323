// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package op

import (
	"fmt"

	"github.com/AleutianAI/derive/services/derive/shape"
)

// Combinator lifts an Op into a new Op.
//
// Lift must be pure, keep parameter 0 as the primary input and rewrite the
// parent's ParamHints to match the new primary shape. Combinators are
// compared by pointer identity when the Library tracks derived pairs.
type Combinator struct {
	Name string
	Lift func(parent *Op) *Op
}

// Apply lifts parent and records the derivation on the result.
func (c *Combinator) Apply(parent *Op) *Op {
	derived := c.Lift(parent)
	derived.Parent = parent
	derived.Via = c
	derived.Depth = parent.Depth + 1
	return derived
}

// Map lifts an elementwise Op over T -> U into one over list<T> -> list<U>.
// Free parameters are passed unchanged to every element call.
var Map = &Combinator{Name: "map", Lift: liftMap}

func liftMap(parent *Op) *Op {
	params := make([]shape.Shape, len(parent.Signature.Params))
	copy(params, parent.Signature.Params)
	if len(params) > 0 {
		params[0] = shape.ListOf(params[0])
	}

	hints := make([]ParamHint, len(parent.ParamHints))
	for i, h := range parent.ParamHints {
		if h == nil {
			continue
		}
		if i == 0 {
			hints[i] = singletons(h)
			continue
		}
		hints[i] = perElement(h)
	}

	return &Op{
		Name: fmt.Sprintf("map(%s)", parent.Name),
		Signature: Signature{
			Params:  params,
			Returns: shape.ListOf(parent.Signature.Returns),
		},
		Arity:      parent.Arity,
		Impl:       mapImpl(parent),
		ParamHints: hints,
	}
}

func mapImpl(parent *Op) Impl {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: map(%s) called without input", ErrMalformedOp, parent.Name)
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("map(%s): primary input is %T, want list", parent.Name, args[0])
		}
		out := make([]any, len(list))
		callArgs := make([]any, len(args))
		copy(callArgs[1:], args[1:])
		for i, el := range list {
			callArgs[0] = el
			res, err := parent.Impl(callArgs...)
			if err != nil {
				return nil, fmt.Errorf("map(%s)[%d]: %w", parent.Name, i, err)
			}
			out[i] = res
		}
		return out, nil
	}
}

// perElement adapts a hint written for a scalar primary to a list primary:
// the parent hint runs on every element and the results are unioned in
// first-seen order.
func perElement(h ParamHint) ParamHint {
	return func(primary any) []any {
		list, ok := primary.([]any)
		if !ok {
			return nil
		}
		var out []any
		for _, el := range list {
			for _, cand := range h(el) {
				if !containsValue(out, cand) {
					out = append(out, cand)
				}
			}
		}
		return out
	}
}

// singletons adapts a hint for the primary slot, which became a list: each
// parent candidate is proposed as a one-element list. A list primary is
// hinted per element first.
func singletons(h ParamHint) ParamHint {
	return func(primary any) []any {
		var cands []any
		if _, ok := primary.([]any); ok {
			cands = perElement(h)(primary)
		} else {
			cands = h(primary)
		}
		out := make([]any, len(cands))
		for i, c := range cands {
			out[i] = []any{c}
		}
		return out
	}
}

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if shape.Equal(x, v) {
			return true
		}
	}
	return false
}
