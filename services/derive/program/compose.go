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

	"github.com/AleutianAI/derive/services/derive/shape"
)

// Compose chains two programs: the output of a becomes the input of b.
//
// Description:
//
//	Used to join programs derived between consecutive waypoints. The
//	example output of a must deep-equal the example input of b. If b
//	ignores its input, a is dropped from the result.
//
// Outputs:
//
//	*Program - Equivalent to running a, then b on the result.
//	error - Wraps ErrProgramMismatch if the examples disagree.
func Compose(a, b *Program) (*Program, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil program", ErrProgramMismatch)
	}
	if b.root != NoNode && !shape.Equal(a.Output(), b.Input()) {
		return nil, fmt.Errorf("%w: first yields %s, second expects %s",
			ErrProgramMismatch, shape.Format(a.Output()), shape.Format(b.Input()))
	}

	bld := &builder{}
	for _, n := range a.nodes {
		bld.addNode(n.Kind, n.Value)
	}
	for _, s := range a.steps {
		bld.addStep(s.Op, s.Inputs, s.Output)
	}

	// b's root collapses onto a's sink.
	remap := make([]NodeID, len(b.nodes))
	for _, n := range b.nodes {
		if n.Kind == KindRoot {
			remap[n.ID] = a.sink
			continue
		}
		remap[n.ID] = bld.addNode(n.Kind, n.Value)
	}
	for _, s := range b.steps {
		inputs := make([]NodeID, len(s.Inputs))
		for i, in := range s.Inputs {
			inputs[i] = remap[in]
		}
		bld.addStep(s.Op, inputs, remap[s.Output])
	}

	p, err := bld.build(remap[b.sink])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramMismatch, err)
	}
	return p, nil
}
