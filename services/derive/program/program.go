// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package program turns one derivation found in a Digraph into a standalone,
// replayable Program.
//
// A Program is a small acyclic dataflow graph: leaf nodes (the input and
// literal constants), computed nodes, and one Step per computed node naming
// the Op that produces it. It shares nothing with the Digraph it was
// extracted from.
//
// # Thread Safety
//
// A Program is immutable once built. Run uses a private scratch buffer, so
// one Program may be replayed from many goroutines at once.
package program

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// NodeID addresses a Node within its Program.
type NodeID int

// NoNode marks an absent node, e.g. the root of a constant program.
const NoNode NodeID = -1

// NodeKind classifies program nodes.
type NodeKind int

const (
	// KindRoot is the program input.
	KindRoot NodeKind = iota

	// KindLiteral is a constant proposed by a ParamHint.
	KindLiteral

	// KindComputed is produced by exactly one Step.
	KindComputed
)

var nodeKindNames = map[NodeKind]string{
	KindRoot:     "root",
	KindLiteral:  "literal",
	KindComputed: "computed",
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Node is one value slot of a Program.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Value is the constant for literals and the example value otherwise.
	Value any
}

// Step computes one node from others.
type Step struct {
	Op     *op.Op
	Inputs []NodeID
	Output NodeID
}

// Program is an extracted derivation.
type Program struct {
	nodes []Node
	steps []Step
	root  NodeID
	sink  NodeID
}

// Root returns the input node, or NoNode for a program that ignores its input.
func (p *Program) Root() NodeID { return p.root }

// Sink returns the result node.
func (p *Program) Sink() NodeID { return p.sink }

// Nodes returns a copy of the nodes.
func (p *Program) Nodes() []Node { return append([]Node(nil), p.nodes...) }

// Steps returns a copy of the steps in execution order.
func (p *Program) Steps() []Step {
	out := make([]Step, len(p.steps))
	for i, s := range p.steps {
		out[i] = Step{Op: s.Op, Inputs: append([]NodeID(nil), s.Inputs...), Output: s.Output}
	}
	return out
}

// Len returns the number of steps.
func (p *Program) Len() int { return len(p.steps) }

// Input returns the example input the program was derived from, or nil for a
// program without a root.
func (p *Program) Input() any {
	if p.root == NoNode {
		return nil
	}
	return p.nodes[p.root].Value
}

// Output returns the example output the program was derived for.
func (p *Program) Output() any {
	return p.nodes[p.sink].Value
}

// OpNames returns the names of the ops used, in execution order.
func (p *Program) OpNames() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Op.Name
	}
	return out
}

// builder assembles nodes and steps before they are checked and frozen.
type builder struct {
	nodes []Node
	steps []Step
}

func (b *builder) addNode(kind NodeKind, value any) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, Node{ID: id, Kind: kind, Value: value})
	return id
}

func (b *builder) addStep(o *op.Op, inputs []NodeID, output NodeID) {
	b.steps = append(b.steps, Step{Op: o, Inputs: append([]NodeID(nil), inputs...), Output: output})
}

// truncate rolls the builder back to an earlier size.
func (b *builder) truncate(nodes, steps int) {
	b.nodes = b.nodes[:nodes]
	b.steps = b.steps[:steps]
}

// build prunes the nodes unreachable from sink, orders the steps
// topologically and checks the structure.
//
// Outputs:
//
//	*Program - The frozen program.
//	error - Describes the structural problem; callers wrap it.
func (b *builder) build(sink NodeID) (*Program, error) {
	if sink < 0 || int(sink) >= len(b.nodes) {
		return nil, fmt.Errorf("sink %d out of range", sink)
	}

	producer := make(map[NodeID]int, len(b.steps))
	for i, s := range b.steps {
		if s.Op == nil {
			return nil, fmt.Errorf("step %d has no op", i)
		}
		if s.Output < 0 || int(s.Output) >= len(b.nodes) {
			return nil, fmt.Errorf("step %d output %d out of range", i, s.Output)
		}
		if b.nodes[s.Output].Kind != KindComputed {
			return nil, fmt.Errorf("step %d writes %s node %d", i, b.nodes[s.Output].Kind, s.Output)
		}
		if _, dup := producer[s.Output]; dup {
			return nil, fmt.Errorf("node %d has more than one step", s.Output)
		}
		if len(s.Inputs) != s.Op.Arity {
			return nil, fmt.Errorf("step %d passes %d inputs to %s", i, len(s.Inputs), s.Op.Name)
		}
		for _, in := range s.Inputs {
			if in < 0 || int(in) >= len(b.nodes) {
				return nil, fmt.Errorf("step %d input %d out of range", i, in)
			}
		}
		producer[s.Output] = i
	}

	// Mark what the sink depends on.
	reachable := make([]bool, len(b.nodes))
	stack := []NodeID{sink}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		if si, ok := producer[id]; ok {
			stack = append(stack, b.steps[si].Inputs...)
		}
	}

	// Renumber the surviving nodes, keeping their relative order.
	remap := make([]NodeID, len(b.nodes))
	p := &Program{root: NoNode}
	for i, n := range b.nodes {
		if !reachable[i] {
			remap[i] = NoNode
			continue
		}
		remap[i] = NodeID(len(p.nodes))
		if n.Kind == KindRoot {
			if p.root != NoNode {
				return nil, fmt.Errorf("more than one root node")
			}
			p.root = remap[i]
		}
		p.nodes = append(p.nodes, Node{ID: remap[i], Kind: n.Kind, Value: n.Value})
	}
	p.sink = remap[sink]

	// Kahn's algorithm over the surviving steps.
	var live []Step
	for _, s := range b.steps {
		if !reachable[s.Output] {
			continue
		}
		inputs := make([]NodeID, len(s.Inputs))
		for i, in := range s.Inputs {
			inputs[i] = remap[in]
		}
		live = append(live, Step{Op: s.Op, Inputs: inputs, Output: remap[s.Output]})
	}
	ordered, err := topoSort(p.nodes, live)
	if err != nil {
		return nil, err
	}
	p.steps = ordered
	return p, nil
}

// topoSort orders steps so every step follows the producers of its inputs.
// Nodes no step produces count as available; Run reports the computed ones.
func topoSort(nodes []Node, steps []Step) ([]Step, error) {
	ready := make([]bool, len(nodes))
	for i := range ready {
		ready[i] = true
	}
	for _, s := range steps {
		ready[s.Output] = false
	}
	pending := make([]int, len(steps))
	consumers := make(map[NodeID][]int)
	var queue []int
	for i, s := range steps {
		seen := make(map[NodeID]bool, len(s.Inputs))
		for _, in := range s.Inputs {
			if seen[in] || ready[in] {
				continue
			}
			seen[in] = true
			pending[i]++
			consumers[in] = append(consumers[in], i)
		}
		if pending[i] == 0 {
			queue = append(queue, i)
		}
	}

	out := make([]Step, 0, len(steps))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		out = append(out, steps[i])
		for _, c := range consumers[steps[i].Output] {
			pending[c]--
			if pending[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if len(out) != len(steps) {
		return nil, fmt.Errorf("steps form a cycle")
	}
	return out, nil
}

// Expression renders the program as one nested call expression, e.g.
// max(map(sum)(map(map(parse))(...))). The input prints as "input".
func (p *Program) Expression() string {
	producer := make(map[NodeID]Step, len(p.steps))
	for _, s := range p.steps {
		producer[s.Output] = s
	}
	var sb strings.Builder
	p.writeExpr(&sb, p.sink, producer)
	return sb.String()
}

func (p *Program) writeExpr(sb *strings.Builder, id NodeID, producer map[NodeID]Step) {
	n := p.nodes[id]
	switch n.Kind {
	case KindRoot:
		sb.WriteString("input")
		return
	case KindLiteral:
		sb.WriteString(shape.Format(n.Value))
		return
	}
	s := producer[id]
	sb.WriteString(s.Op.Name)
	sb.WriteByte('(')
	for i, in := range s.Inputs {
		if i > 0 {
			sb.WriteString(", ")
		}
		p.writeExpr(sb, in, producer)
	}
	sb.WriteByte(')')
}

// String lists the program one assignment per line:
//
//	v0 = input
//	v1 = "\n\n"
//	v2 = split(v0, v1)
func (p *Program) String() string {
	var sb strings.Builder
	step := make(map[NodeID]Step, len(p.steps))
	for _, s := range p.steps {
		step[s.Output] = s
	}
	for _, n := range p.nodes {
		if n.Kind == KindComputed {
			continue
		}
		if n.Kind == KindRoot {
			fmt.Fprintf(&sb, "v%d = input\n", n.ID)
		} else {
			fmt.Fprintf(&sb, "v%d = %s\n", n.ID, shape.Format(n.Value))
		}
	}
	for _, s := range p.steps {
		args := make([]string, len(s.Inputs))
		for i, in := range s.Inputs {
			args[i] = fmt.Sprintf("v%d", in)
		}
		fmt.Fprintf(&sb, "v%d = %s(%s)\n", s.Output, s.Op.Name, strings.Join(args, ", "))
	}
	return sb.String()
}
