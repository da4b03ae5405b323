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

import "errors"

// Sentinel errors for program operations.
var (
	// ErrNoDerivation is returned by Extract when the target cannot be
	// reached from the root and literals without revisiting a node.
	ErrNoDerivation = errors.New("no acyclic derivation")

	// ErrReplayIncomplete is returned by Run when a node is read before
	// any step has computed it.
	ErrReplayIncomplete = errors.New("replay incomplete: node never computed")

	// ErrReplayFailed is returned by Run when an op rejects its arguments.
	ErrReplayFailed = errors.New("replay failed")

	// ErrProgramMismatch is returned by Compose when the first program's
	// output is not the second program's input.
	ErrProgramMismatch = errors.New("programs do not compose")

	// ErrDecode is returned when an encoded program is malformed.
	ErrDecode = errors.New("decode program")
)
