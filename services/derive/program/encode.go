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
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

// OpResolver maps stored op names back to Ops. *library.Library satisfies it.
type OpResolver interface {
	Lookup(name string) (*op.Op, bool)
}

type encodedProgram struct {
	Version int           `cbor:"1,keyasint"`
	Nodes   []encodedNode `cbor:"2,keyasint"`
	Steps   []encodedStep `cbor:"3,keyasint"`
	Root    int           `cbor:"4,keyasint"`
	Sink    int           `cbor:"5,keyasint"`
}

type encodedNode struct {
	Kind  int `cbor:"1,keyasint"`
	Value any `cbor:"2,keyasint"`
}

type encodedStep struct {
	Op     string `cbor:"1,keyasint"`
	Inputs []int  `cbor:"2,keyasint"`
	Output int    `cbor:"3,keyasint"`
}

var (
	encMode = func() cbor.EncMode {
		mode, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			panic(fmt.Sprintf("program: canonical cbor options: %v", err))
		}
		return mode
	}()

	decMode = func() cbor.DecMode {
		mode, err := cbor.DecOptions{
			DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		}.DecMode()
		if err != nil {
			panic(fmt.Sprintf("program: cbor decode options: %v", err))
		}
		return mode
	}()
)

// Encode serializes the program to canonical CBOR.
//
// Ops are stored by name and literals by value, so equal programs encode to
// identical bytes.
func (p *Program) Encode() ([]byte, error) {
	enc := encodedProgram{
		Version: formatVersion,
		Nodes:   make([]encodedNode, len(p.nodes)),
		Steps:   make([]encodedStep, len(p.steps)),
		Root:    int(p.root),
		Sink:    int(p.sink),
	}
	for i, n := range p.nodes {
		if _, ok := n.Value.(shape.Func); ok {
			return nil, fmt.Errorf("encode node %d: %w: function values are not storable", i, shape.ErrUnsupportedValue)
		}
		enc.Nodes[i] = encodedNode{Kind: int(n.Kind), Value: n.Value}
	}
	for i, s := range p.steps {
		inputs := make([]int, len(s.Inputs))
		for j, in := range s.Inputs {
			inputs[j] = int(in)
		}
		enc.Steps[i] = encodedStep{Op: s.Op.Name, Inputs: inputs, Output: int(s.Output)}
	}

	data, err := encMode.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("encode program: %w", err)
	}
	return data, nil
}

// Decode rebuilds a program encoded by Encode.
//
// Inputs:
//
//	data - The encoded program.
//	resolver - Resolves op names, typically the Library the program was
//	           derived with, seeded at least as deep.
//
// Outputs:
//
//	*Program - The program.
//	error - Wraps ErrDecode; also wraps library.ErrUnknownOp for an op the
//	        resolver does not know.
func Decode(data []byte, resolver OpResolver) (*Program, error) {
	var enc encodedProgram
	if err := decMode.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if enc.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, enc.Version)
	}

	b := &builder{}
	for i, n := range enc.Nodes {
		kind := NodeKind(n.Kind)
		if _, ok := nodeKindNames[kind]; !ok {
			return nil, fmt.Errorf("%w: node %d has kind %d", ErrDecode, i, n.Kind)
		}
		value, err := shape.Normalize(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrDecode, i, err)
		}
		b.addNode(kind, value)
	}
	if enc.Root != int(NoNode) && (enc.Root < 0 || enc.Root >= len(b.nodes) || b.nodes[enc.Root].Kind != KindRoot) {
		return nil, fmt.Errorf("%w: root %d is not a root node", ErrDecode, enc.Root)
	}

	for i, s := range enc.Steps {
		o, ok := resolver.Lookup(s.Op)
		if !ok {
			return nil, fmt.Errorf("%w: step %d: %w: %s", ErrDecode, i, library.ErrUnknownOp, s.Op)
		}
		inputs := make([]NodeID, len(s.Inputs))
		for j, in := range s.Inputs {
			inputs[j] = NodeID(in)
		}
		b.addStep(o, inputs, NodeID(s.Output))
	}

	p, err := b.build(NodeID(enc.Sink))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p, nil
}
