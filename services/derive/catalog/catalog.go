// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides the concrete Ops the derive service ships with.
//
// The catalog is deliberately small: text splitting, number parsing and a
// handful of list reductions. Ops that cannot handle their input propagate
// NaN rather than failing, so a wrong branch of the search produces a value
// that never matches a numeric target by accident.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// Delimiters proposed by the split hint, most specific first.
var Delimiters = []string{"\r\n\r\n", "\n\n", "\r\n", "\n", ",", " "}

// SliceCounts proposed by the slice hint.
var SliceCounts = []any{1.0, 2.0, 3.0}

// Split is split(text, delimiter) -> list<string>.
var Split = &op.Op{
	Name: "split",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.String(), shape.String()},
		Returns: shape.ListOf(shape.String()),
	},
	Arity: 2,
	Impl: func(args ...any) (any, error) {
		text, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("split: text is %T", args[0])
		}
		delim, ok := args[1].(string)
		if !ok || delim == "" {
			return nil, fmt.Errorf("split: invalid delimiter %v", args[1])
		}
		parts := strings.Split(text, delim)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	ParamHints: []op.ParamHint{nil, delimiterHint},
}

func delimiterHint(primary any) []any {
	text, ok := primary.(string)
	if !ok {
		return nil
	}
	var out []any
	for _, d := range Delimiters {
		if strings.Contains(text, d) {
			out = append(out, d)
		}
	}
	return out
}

// Parse is parse(text) -> number. Text that is not a decimal number parses
// to NaN.
var Parse = &op.Op{
	Name: "parse",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.String()},
		Returns: shape.Number(),
	},
	Arity: 1,
	Impl: func(args ...any) (any, error) {
		text, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("parse: text is %T", args[0])
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return math.NaN(), nil
		}
		return n, nil
	},
}

// Sum is sum(list<number>) -> number. The empty sum is 0.
var Sum = &op.Op{
	Name: "sum",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.ListOf(shape.Number())},
		Returns: shape.Number(),
	},
	Arity: 1,
	Impl: func(args ...any) (any, error) {
		nums, err := numbers("sum", args[0])
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total, nil
	},
}

// Max is max(list<number>) -> number. The maximum of the empty list is
// -Infinity; any NaN element makes the result NaN.
var Max = &op.Op{
	Name: "max",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.ListOf(shape.Number())},
		Returns: shape.Number(),
	},
	Arity: 1,
	Impl: func(args ...any) (any, error) {
		nums, err := numbers("max", args[0])
		if err != nil {
			return nil, err
		}
		best := math.Inf(-1)
		for _, n := range nums {
			if math.IsNaN(n) {
				return math.NaN(), nil
			}
			if n > best {
				best = n
			}
		}
		return best, nil
	},
}

// SortDesc is sortDesc(list<number>) -> list<number>. NaN sorts last.
var SortDesc = &op.Op{
	Name: "sortDesc",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.ListOf(shape.Number())},
		Returns: shape.ListOf(shape.Number()),
	},
	Arity: 1,
	Impl: func(args ...any) (any, error) {
		nums, err := numbers("sortDesc", args[0])
		if err != nil {
			return nil, err
		}
		sort.SliceStable(nums, func(i, j int) bool {
			if math.IsNaN(nums[j]) {
				return !math.IsNaN(nums[i])
			}
			return nums[i] > nums[j]
		})
		out := make([]any, len(nums))
		for i, n := range nums {
			out[i] = n
		}
		return out, nil
	},
}

// Slice is slice(list<number>, count) -> list<number>: the first count
// elements. The count is floored and clamped to the list length.
var Slice = &op.Op{
	Name: "slice",
	Signature: op.Signature{
		Params:  []shape.Shape{shape.ListOf(shape.Number()), shape.Number()},
		Returns: shape.ListOf(shape.Number()),
	},
	Arity: 2,
	Impl: func(args ...any) (any, error) {
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("slice: list is %T", args[0])
		}
		count, ok := args[1].(float64)
		if !ok || math.IsNaN(count) {
			return nil, fmt.Errorf("slice: invalid count %v", args[1])
		}
		n := int(math.Max(0, math.Min(math.Floor(count), float64(len(list)))))
		return append([]any{}, list[:n]...), nil
	},
	ParamHints: []op.ParamHint{nil, func(any) []any { return SliceCounts }},
}

func numbers(name string, v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: input is %T, want list", name, v)
	}
	out := make([]float64, len(list))
	for i, el := range list {
		n, ok := el.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %T, want number", name, i, el)
		}
		out[i] = n
	}
	return out, nil
}

var all = []*op.Op{Split, Parse, Sum, Max, SortDesc, Slice}

// Default returns every catalog Op in search order.
func Default() []*op.Op {
	return append([]*op.Op(nil), all...)
}

// Combinators returns the catalog combinators.
func Combinators() []*op.Combinator {
	return []*op.Combinator{op.Map}
}

// Names returns the names of every catalog Op.
func Names() []string {
	out := make([]string, len(all))
	for i, o := range all {
		out[i] = o.Name
	}
	return out
}

// ByName selects catalog Ops by name, preserving the requested order.
//
// Outputs:
//
//	[]*op.Op - The selected Ops. Empty names select Default().
//	error - Wraps library.ErrUnknownOp if a name is not in the catalog.
func ByName(names ...string) ([]*op.Op, error) {
	if len(names) == 0 {
		return Default(), nil
	}
	out := make([]*op.Op, 0, len(names))
	for _, name := range names {
		found := false
		for _, o := range all {
			if o.Name == name {
				out = append(out, o)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q (have %s)", library.ErrUnknownOp, name, strings.Join(Names(), ", "))
		}
	}
	return out, nil
}
