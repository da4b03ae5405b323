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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// Digraph is the value graph of one search session.
//
// Lifecycle:
//
//  1. Create with New(root)
//  2. Grow with Expand, one generation per call
//  3. Hand a Value to program.Extract
//  4. Discard
type Digraph struct {
	values []*Value
	arrows []*Arrow

	// index maps the deep hash of Data to the values in that bucket.
	index map[shape.Key][]ValueID

	root       ValueID
	generation int

	options GraphOptions
	logger  *slog.Logger
	debug   bool
}

// New creates a Digraph seeded with the root value.
//
// Description:
//
//	Normalizes root (see shape.Normalize) and allocates it as Value 0 in
//	generation 0.
//
// Inputs:
//
//	root - The example input.
//	opts - Optional configuration options.
//
// Outputs:
//
//	*Digraph - The graph holding only the root.
//	error - Wraps ErrUnsupportedValue if root cannot be represented.
//
// Example:
//
//	g, err := digraph.New("1000\n2000",
//	    digraph.WithMaxValues(50_000),
//	)
func New(root any, opts ...GraphOption) (*Digraph, error) {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.MaxValues <= 0 {
		options.MaxValues = DefaultMaxValues
	}
	if options.MaxArrows <= 0 {
		options.MaxArrows = DefaultMaxArrows
	}

	g := &Digraph{
		values:  make([]*Value, 0, 64),
		arrows:  make([]*Arrow, 0, 64),
		index:   make(map[shape.Key][]ValueID),
		options: options,
		logger:  options.Logger.With(slog.String("component", "digraph")),
	}

	data, err := shape.Normalize(root)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	v, _, err := g.allocate(data, false)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	g.root = v.ID
	return g, nil
}

// Root returns the root Value.
func (g *Digraph) Root() *Value {
	return g.values[g.root]
}

// Generation returns the number of generations expanded so far.
func (g *Digraph) Generation() int {
	return g.generation
}

// ValueCount returns the number of values.
func (g *Digraph) ValueCount() int {
	return len(g.values)
}

// ArrowCount returns the number of arrows.
func (g *Digraph) ArrowCount() int {
	return len(g.arrows)
}

// Value returns the value with the given ID, or nil.
func (g *Digraph) Value(id ValueID) *Value {
	if id < 0 || int(id) >= len(g.values) {
		return nil
	}
	return g.values[id]
}

// Arrow returns the arrow with the given ID, or nil.
func (g *Digraph) Arrow(id ArrowID) *Arrow {
	if id < 0 || int(id) >= len(g.arrows) {
		return nil
	}
	return g.arrows[id]
}

// Values returns every value in allocation order. The slice is a copy; the
// values are not and must not be modified.
func (g *Digraph) Values() []*Value {
	return append([]*Value(nil), g.values...)
}

// Arrows returns every arrow in creation order. The slice is a copy.
func (g *Digraph) Arrows() []*Arrow {
	return append([]*Arrow(nil), g.arrows...)
}

// Lookup finds the Value deep-equal to data.
//
// Inputs:
//
//	data - Any value accepted by shape.Normalize.
//
// Outputs:
//
//	*Value - The matching value, or nil.
//	bool - True if found. Unsupported data is never found.
func (g *Digraph) Lookup(data any) (*Value, bool) {
	norm, err := shape.Normalize(data)
	if err != nil {
		return nil, false
	}
	key, err := shape.Hash(norm)
	if err != nil {
		return nil, false
	}
	return g.lookup(key, norm)
}

func (g *Digraph) lookup(key shape.Key, data any) (*Value, bool) {
	for _, id := range g.index[key] {
		if shape.Equal(g.values[id].Data, data) {
			return g.values[id], true
		}
	}
	return nil, false
}

// Allocate resolves data to its unique Value, creating it if absent.
//
// Description:
//
//	This is the only way values enter the graph. Deep-equal data always
//	resolves to the same Value. literal only applies to a Value created by
//	this call; an existing Value keeps the flag it was created with.
//
// Outputs:
//
//	*Value - The resolved value.
//	bool - True if the value was created by this call.
//	error - ErrUnsupportedValue, or ErrMaxValuesExceeded when full.
func (g *Digraph) Allocate(data any, literal bool) (*Value, bool, error) {
	norm, err := shape.Normalize(data)
	if err != nil {
		return nil, false, err
	}
	return g.allocate(norm, literal)
}

// allocate expects normalized data.
func (g *Digraph) allocate(data any, literal bool) (*Value, bool, error) {
	key, err := shape.Hash(data)
	if err != nil {
		return nil, false, err
	}
	if v, ok := g.lookup(key, data); ok {
		return v, false, nil
	}
	if len(g.values) >= g.options.MaxValues {
		return nil, false, fmt.Errorf("%w: limit %d", ErrMaxValuesExceeded, g.options.MaxValues)
	}

	v := &Value{
		ID:         ValueID(len(g.values)),
		Data:       data,
		Literal:    literal,
		Generation: g.generation,
	}
	g.values = append(g.values, v)
	g.index[key] = append(g.index[key], v.ID)
	return v, true, nil
}

// FindArrow returns the arrow applying o to exactly inputs, or nil.
//
// The lookup scans the outgoing arrows of the first input, which every
// application registers with.
func (g *Digraph) FindArrow(o *op.Op, inputs []ValueID) *Arrow {
	if len(inputs) == 0 {
		return nil
	}
	first := g.Value(inputs[0])
	if first == nil {
		return nil
	}
	for _, aid := range first.Out {
		a := g.arrows[aid]
		if a.Op == o && sameInputs(a.Inputs, inputs) {
			return a
		}
	}
	return nil
}

func sameInputs(a, b []ValueID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// link creates an arrow and registers it with its endpoints.
func (g *Digraph) link(o *op.Op, inputs []ValueID, literals []bool, output ValueID) (*Arrow, error) {
	if len(g.arrows) >= g.options.MaxArrows {
		return nil, fmt.Errorf("%w: limit %d", ErrMaxArrowsExceeded, g.options.MaxArrows)
	}
	a := &Arrow{
		ID:         ArrowID(len(g.arrows)),
		Op:         o,
		Inputs:     append([]ValueID(nil), inputs...),
		Output:     output,
		Generation: g.generation,
	}
	for _, lit := range literals {
		if lit {
			a.LiteralInputs = append([]bool(nil), literals...)
			break
		}
	}
	g.arrows = append(g.arrows, a)

	for i, in := range a.Inputs {
		if containsID(a.Inputs[:i], in) {
			continue
		}
		v := g.values[in]
		v.Out = append(v.Out, a.ID)
	}
	out := g.values[output]
	out.In = append(out.In, a.ID)
	return a, nil
}

func containsID(ids []ValueID, id ValueID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Validate checks the structural guarantees of the graph.
//
// Description:
//
//	Verifies that no two values are deep-equal, that no two arrows share
//	an Op and an input tuple, and that In/Out registrations agree with the
//	arrows. Intended for tests and debugging; it rehashes every value.
//
// Outputs:
//
//	error - Wraps ErrInconsistent describing the first violation found.
func (g *Digraph) Validate() error {
	buckets := make(map[shape.Key][]ValueID, len(g.values))
	for _, v := range g.values {
		key, err := shape.Hash(v.Data)
		if err != nil {
			return fmt.Errorf("%w: value %d: %v", ErrInconsistent, v.ID, err)
		}
		for _, other := range buckets[key] {
			if shape.Equal(g.values[other].Data, v.Data) {
				return fmt.Errorf("%w: values %d and %d are equal", ErrInconsistent, other, v.ID)
			}
		}
		buckets[key] = append(buckets[key], v.ID)
	}

	type application struct {
		op     *op.Op
		inputs string
	}
	seen := make(map[application]ArrowID, len(g.arrows))
	for _, a := range g.arrows {
		app := application{op: a.Op, inputs: fmt.Sprint(a.Inputs)}
		if prev, dup := seen[app]; dup {
			return fmt.Errorf("%w: arrows %d and %d apply %s to the same inputs",
				ErrInconsistent, prev, a.ID, a.Op.Name)
		}
		seen[app] = a.ID

		if !containsArrow(g.values[a.Output].In, a.ID) {
			return fmt.Errorf("%w: arrow %d missing from In of value %d", ErrInconsistent, a.ID, a.Output)
		}
		for _, in := range a.Inputs {
			if !containsArrow(g.values[in].Out, a.ID) {
				return fmt.Errorf("%w: arrow %d missing from Out of value %d", ErrInconsistent, a.ID, in)
			}
		}
	}
	return nil
}

func containsArrow(ids []ArrowID, id ArrowID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
