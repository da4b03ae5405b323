// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package program

import (
	"fmt"

	"github.com/AleutianAI/derive/services/derive/digraph"
)

// Extract isolates one derivation of target as a Program.
//
// Description:
//
//	Walks backward from target. The root is a leaf. A value bound through a
//	hinted parameter (Arrow.LiteralInput) becomes a literal leaf at that
//	position, as does a value nothing derives. Every other value takes its
//	first incoming arrow whose graph-bound inputs are not on the current
//	walk path, which rules out self-derivations and cycles. If no input of
//	that arrow can be derived, the next incoming arrow is tried. A value
//	reached along two branches becomes one shared node.
//
// Inputs:
//
//	g - The graph of a finished search. Not modified.
//	target - The value to derive.
//
// Outputs:
//
//	*Program - The derivation, independent of g.
//	error - Wraps ErrNoDerivation if target is unknown or unreachable.
//
// Thread Safety: Safe as long as g is not being expanded concurrently.
func Extract(g *digraph.Digraph, target digraph.ValueID) (*Program, error) {
	if g.Value(target) == nil {
		return nil, fmt.Errorf("%w: value %d not in graph", ErrNoDerivation, target)
	}

	e := &extractor{
		g:        g,
		b:        &builder{},
		memo:     make(map[digraph.ValueID]NodeID),
		literals: make(map[digraph.ValueID]NodeID),
		onPath:   make(map[digraph.ValueID]bool),
	}
	sink, ok := e.visit(target, false)
	if !ok {
		return nil, fmt.Errorf("%w: value %d", ErrNoDerivation, target)
	}

	p, err := e.b.build(sink)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDerivation, err)
	}
	return p, nil
}

type extractor struct {
	g *digraph.Digraph
	b *builder

	// memo holds derived and root nodes, literals the constant nodes. A
	// value can be both when it is hinted in one place and computed in
	// another.
	memo     map[digraph.ValueID]NodeID
	literals map[digraph.ValueID]NodeID
	onPath   map[digraph.ValueID]bool
}

func (e *extractor) visit(id digraph.ValueID, literal bool) (NodeID, bool) {
	v := e.g.Value(id)
	switch {
	case id == e.g.Root().ID:
		if n, ok := e.memo[id]; ok {
			return n, true
		}
		n := e.b.addNode(KindRoot, v.Data)
		e.memo[id] = n
		return n, true
	case literal || len(v.In) == 0:
		if n, ok := e.literals[id]; ok {
			return n, true
		}
		n := e.b.addNode(KindLiteral, v.Data)
		e.literals[id] = n
		return n, true
	}
	if n, ok := e.memo[id]; ok {
		return n, true
	}
	if e.onPath[id] {
		return NoNode, false
	}

	e.onPath[id] = true
	defer delete(e.onPath, id)

	for _, aid := range v.In {
		a := e.g.Arrow(aid)
		if e.touchesPath(a) {
			continue
		}

		nodesMark, stepsMark := len(e.b.nodes), len(e.b.steps)
		inputs := make([]NodeID, 0, len(a.Inputs))
		ok := true
		for i, in := range a.Inputs {
			n, derived := e.visit(in, a.LiteralInput(i))
			if !derived {
				ok = false
				break
			}
			inputs = append(inputs, n)
		}
		if !ok {
			e.rollback(nodesMark, stepsMark)
			continue
		}

		n := e.b.addNode(KindComputed, v.Data)
		e.b.addStep(a.Op, inputs, n)
		e.memo[id] = n
		return n, true
	}
	return NoNode, false
}

// touchesPath reports whether a graph-bound input of a is on the walk path.
// Hinted inputs are constants and cannot close a cycle.
func (e *extractor) touchesPath(a *digraph.Arrow) bool {
	for i, in := range a.Inputs {
		if e.onPath[in] && !a.LiteralInput(i) {
			return true
		}
	}
	return false
}

// rollback discards the nodes of an abandoned arrow, and their memo entries.
func (e *extractor) rollback(nodes, steps int) {
	for _, memo := range []map[digraph.ValueID]NodeID{e.memo, e.literals} {
		for id, n := range memo {
			if int(n) >= nodes {
				delete(memo, id)
			}
		}
	}
	e.b.truncate(nodes, steps)
}
