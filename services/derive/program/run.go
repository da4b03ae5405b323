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

// Run replays p on input. See (*Program).Run.
func Run(p *Program, input any) (any, error) {
	return p.Run(input)
}

// Run replays the program on a new input.
//
// Description:
//
//	Binds input to the root, the literals to their constants, and executes
//	the steps in order. Every argument is shape-checked against the op
//	signature before the op runs.
//
// Inputs:
//
//	input - Any value accepted by shape.Normalize.
//
// Outputs:
//
//	any - The value of the sink.
//	error - ErrReplayIncomplete if a step reads, or the sink is, a node no
//	        step computed. ErrReplayFailed if the input is unsupported, an
//	        argument has the wrong shape or an op returns an error.
//
// Thread Safety: Safe for concurrent use.
func (p *Program) Run(input any) (any, error) {
	data, err := shape.Normalize(input)
	if err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrReplayFailed, err)
	}

	scratch := make([]any, len(p.nodes))
	fresh := make([]bool, len(p.nodes))
	for _, n := range p.nodes {
		switch n.Kind {
		case KindRoot:
			scratch[n.ID] = data
			fresh[n.ID] = true
		case KindLiteral:
			scratch[n.ID] = n.Value
			fresh[n.ID] = true
		}
	}

	for _, s := range p.steps {
		args := make([]any, len(s.Inputs))
		for i, in := range s.Inputs {
			if !fresh[in] {
				return nil, fmt.Errorf("%w: %s reads v%d", ErrReplayIncomplete, s.Op.Name, in)
			}
			if !s.Op.Signature.Params[i].Check(scratch[in]) {
				return nil, fmt.Errorf("%w: %s argument %d is %s, want %s",
					ErrReplayFailed, s.Op.Name, i, shape.Format(scratch[in]), s.Op.Signature.Params[i])
			}
			args[i] = scratch[in]
		}

		res, err := s.Op.Impl(args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrReplayFailed, s.Op.Name, err)
		}
		out, err := shape.Normalize(res)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrReplayFailed, s.Op.Name, err)
		}
		scratch[s.Output] = out
		fresh[s.Output] = true
	}

	if !fresh[p.sink] {
		return nil, fmt.Errorf("%w: sink v%d", ErrReplayIncomplete, p.sink)
	}
	return scratch[p.sink], nil
}
