// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shape describes the runtime values the synthesizer works with.
//
// Values are plain Go data restricted to a closed set of concrete types:
//
//	string          - text
//	float64         - number (NaN is a legal value)
//	[]any           - ordered sequence
//	map[string]any  - mapping (compared, never produced by the catalog)
//	Func            - function value
//
// A Shape is a predicate over such values. Shapes form a closed sum type
// (string, number, char, list of S, func) and are bound once per Op
// signature. Equality and hashing of values live in equal.go and must be
// used for every comparison the search performs.
package shape

import (
	"unicode/utf8"
)

// Kind enumerates the closed set of shapes.
type Kind int

const (
	// KindString matches any string.
	KindString Kind = iota

	// KindNumber matches float64 values, including NaN and infinities.
	KindNumber

	// KindChar matches strings of exactly one rune.
	KindChar

	// KindList matches []any whose elements all match Elem.
	KindList

	// KindFunc matches Func values.
	KindFunc
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindNumber: "number",
	KindChar:   "char",
	KindList:   "list",
	KindFunc:   "func",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Func is the function value shape. It is a value, not an Op: Ops are
// described by the op package and never flow through the graph.
type Func func(args ...any) (any, error)

// Shape is a structural type predicate.
//
// The zero Shape is the string shape. List shapes carry their element shape;
// all other kinds ignore Elem.
type Shape struct {
	Kind Kind
	Elem *Shape
}

// String returns the string shape.
func String() Shape { return Shape{Kind: KindString} }

// Number returns the number shape.
func Number() Shape { return Shape{Kind: KindNumber} }

// Char returns the single-character string shape.
func Char() Shape { return Shape{Kind: KindChar} }

// Function returns the function shape.
func Function() Shape { return Shape{Kind: KindFunc} }

// ListOf returns the shape of a sequence whose elements all have shape elem.
func ListOf(elem Shape) Shape {
	e := elem
	return Shape{Kind: KindList, Elem: &e}
}

// Check reports whether the runtime value v has this shape.
//
// Description:
//
//	The empty list satisfies every list shape. A one-rune string satisfies
//	both String and Char. Values outside the closed set never match.
//
// Inputs:
//
//	v - A normalized runtime value (see Normalize).
//
// Outputs:
//
//	bool - True if v has this shape.
func (s Shape) Check(v any) bool {
	switch s.Kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindChar:
		str, ok := v.(string)
		return ok && utf8.RuneCountInString(str) == 1
	case KindList:
		list, ok := v.([]any)
		if !ok {
			return false
		}
		if s.Elem == nil {
			return true
		}
		for _, el := range list {
			if !s.Elem.Check(el) {
				return false
			}
		}
		return true
	case KindFunc:
		_, ok := v.(Func)
		return ok
	default:
		return false
	}
}

// Equal reports whether two shapes are structurally identical.
func (s Shape) Equal(other Shape) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind != KindList {
		return true
	}
	if s.Elem == nil || other.Elem == nil {
		return s.Elem == other.Elem
	}
	return s.Elem.Equal(*other.Elem)
}

// ElemShape returns the element shape of a list shape.
// For non-list shapes, or lists without an element constraint, ok is false.
func (s Shape) ElemShape() (elem Shape, ok bool) {
	if s.Kind != KindList || s.Elem == nil {
		return Shape{}, false
	}
	return *s.Elem, true
}

// String renders the shape, e.g. "list<list<number>>".
func (s Shape) String() string {
	if s.Kind == KindList {
		if s.Elem == nil {
			return "list"
		}
		return "list<" + s.Elem.String() + ">"
	}
	return s.Kind.String()
}
