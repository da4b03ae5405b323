// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/derive/services/derive/catalog"
	"github.com/AleutianAI/derive/services/derive/digraph"
	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/program"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

type opList []*op.Op

func (l opList) Ops() []*op.Op { return l }

var identity = &op.Op{
	Name:      "id",
	Signature: op.Signature{Params: []shape.Shape{shape.Number()}, Returns: shape.Number()},
	Arity:     1,
	Impl:      func(args ...any) (any, error) { return args[0], nil },
}

// groupsLibrary is split, parse, sum and max with eight Map derivations.
func groupsLibrary(t *testing.T) *library.Library {
	t.Helper()
	ops, err := catalog.ByName("split", "parse", "sum", "max")
	require.NoError(t, err)
	lib, err := library.New(ops, catalog.Combinators())
	require.NoError(t, err)
	n, err := lib.Seed(8)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	return lib
}

func linesLibrary(t *testing.T) *library.Library {
	t.Helper()
	ops, err := catalog.ByName("split", "parse", "sum")
	require.NoError(t, err)
	lib, err := library.New(ops, catalog.Combinators())
	require.NoError(t, err)
	_, err = lib.Seed(2)
	require.NoError(t, err)
	return lib
}

type recorder struct {
	arrows      int
	generations []digraph.GenerationStats
	found       *program.Program
	failed      error
}

func (r *recorder) Arrow(*digraph.Digraph, *digraph.Arrow, bool) { r.arrows++ }

func (r *recorder) Generation(_ *digraph.Digraph, s digraph.GenerationStats) {
	r.generations = append(r.generations, s)
}

func (r *recorder) Found(p *program.Program, _ int) { r.found = p }

func (r *recorder) Failed(err error) { r.failed = err }

const groups = "1000\n2000\n3000\n\n4000"

// -----------------------------------------------------------------------------
// Scenarios
// -----------------------------------------------------------------------------

func TestDeriveProgram_MaxGroupSum(t *testing.T) {
	p, err := DeriveProgram(context.Background(), groups, 6000.0, groupsLibrary(t), DefaultMaxGenerations)
	require.NoError(t, err)
	t.Log(p.Expression())

	got, err := p.Run(groups)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, got)

	got, err = p.Run("10\n20\n\n5")
	require.NoError(t, err)
	assert.Equal(t, 30.0, got)

	got, err = p.Run("1\n\n2\n3\n\n4")
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestDeriveProgram_TopThree(t *testing.T) {
	lib, err := library.New(catalog.Default(), catalog.Combinators())
	require.NoError(t, err)

	input := []any{6000.0, 4000.0, 11000.0, 24000.0, 10000.0}
	res, err := NewSearcher(lib).Derive(context.Background(), input, 45000.0)
	require.NoError(t, err)

	assert.Equal(t, `sum(slice(sortDesc(input), 3))`, res.Program.Expression())
	assert.Equal(t, 3, res.Generations)

	got, err := res.Program.Run([]any{1.0, 5.0, 3.0, 4.0, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 12.0, got)
}

func TestDeriveProgram_Deterministic(t *testing.T) {
	first, err := DeriveProgram(context.Background(), groups, 6000.0, groupsLibrary(t), DefaultMaxGenerations)
	require.NoError(t, err)
	second, err := DeriveProgram(context.Background(), groups, 6000.0, groupsLibrary(t), DefaultMaxGenerations)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, first.Expression(), second.Expression())
}

func TestDeriveProgram_Terminates(t *testing.T) {
	lib, err := library.New(catalog.Default(), catalog.Combinators())
	require.NoError(t, err)
	_, err = lib.Seed(4)
	require.NoError(t, err)

	p, err := DeriveProgram(context.Background(), "1\n2\n3", "not reachable", lib, 3)
	require.Error(t, err)
	assert.Nil(t, p)

	var failure *SearchFailure
	require.True(t, errors.As(err, &failure))
	assert.LessOrEqual(t, failure.Generations, 3)
	assert.True(t, errors.Is(err, ErrSearchExhausted) || errors.Is(err, ErrSearchDeadEnd))
}

func TestDeriveProgram_HintInsufficient(t *testing.T) {
	// No delimiter hint matches ";", so the split can never be found.
	p, err := DeriveProgram(context.Background(), "a;b", []any{"a", "b"}, opList{catalog.Split}, 5)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrSearchDeadEnd)
}

func TestDeriveProgram_DeadEnd(t *testing.T) {
	rec := &recorder{}
	_, err := DeriveProgram(context.Background(), 1.0, 2.0, opList{identity}, 10, WithReporter(rec))
	require.Error(t, err)

	var failure *SearchFailure
	require.True(t, errors.As(err, &failure))
	assert.True(t, failure.DeadEnd())
	assert.Equal(t, 2, failure.Generations)
	assert.Equal(t, 1, failure.Values)
	assert.Equal(t, 1, failure.Arrows)
	assert.Contains(t, failure.Error(), "after 2 generations")

	assert.Equal(t, 1, rec.arrows)
	assert.Len(t, rec.generations, 2)
	assert.Equal(t, err, rec.failed)
	assert.Nil(t, rec.found)
}

func TestDeriveProgram_Exhausted(t *testing.T) {
	p, err := DeriveProgram(context.Background(), groups, 6000.0, groupsLibrary(t), 2)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrSearchExhausted)

	var failure *SearchFailure
	require.True(t, errors.As(err, &failure))
	assert.False(t, failure.DeadEnd())
	assert.Equal(t, 2, failure.Generations)
}

func TestDeriveProgram_GraphLimit(t *testing.T) {
	_, err := DeriveProgram(context.Background(), groups, 6000.0, groupsLibrary(t), 8, WithMaxValues(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, digraph.ErrMaxValuesExceeded)

	var failure *SearchFailure
	require.True(t, errors.As(err, &failure))
	assert.LessOrEqual(t, failure.Values, 3)
}

func TestDeriveProgram_UnsupportedOutput(t *testing.T) {
	_, err := DeriveProgram(context.Background(), "x", struct{}{}, opList{catalog.Split}, 2)
	assert.ErrorIs(t, err, shape.ErrUnsupportedValue)
}

// The count 2 is both a slice hint and a sum over the input, so the found value
// was first allocated by a hint. Its derivation must still come from input.
func TestDeriveProgram_HintedValueIsDerived(t *testing.T) {
	lib, err := library.New(catalog.Default(), catalog.Combinators())
	require.NoError(t, err)
	_, err = lib.Seed(12)
	require.NoError(t, err)

	const in = "1\n1\n\n1"
	p, err := DeriveProgram(context.Background(), in, 2.0, lib, DefaultMaxGenerations)
	require.NoError(t, err)
	t.Log(p.Expression())

	assert.Positive(t, p.Len())
	assert.Contains(t, p.Expression(), "input")
	got, err := p.Run(in)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestSession_GraphValidAfterGenerations(t *testing.T) {
	s, err := NewSession(groups, 6000.0, groupsLibrary(t), WithMaxGenerations(4))
	require.NoError(t, err)

	_, _ = s.Run(context.Background())
	assert.GreaterOrEqual(t, s.Generation(), 2)
	require.NoError(t, s.Graph().Validate())

	for i := 0; i < s.Graph().ArrowCount(); i++ {
		a := s.Graph().Arrow(digraph.ArrowID(i))
		for j := range a.Inputs {
			if a.LiteralInput(j) {
				require.NotNil(t, a.Op.Hint(j), "%s input %d", a.Op.Name, j)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

func TestSession_InputIsOutput(t *testing.T) {
	rec := &recorder{}
	s, err := NewSession("same", "same", opList{catalog.Split}, WithReporter(rec))
	require.NoError(t, err)

	assert.Equal(t, StateFound, s.State())
	assert.Equal(t, 0, s.Generation())
	require.NotNil(t, s.Program())
	assert.Equal(t, "input", s.Program().Expression())
	assert.Same(t, s.Program(), rec.found)

	stats, err := s.Step(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, digraph.GenerationStats{}, stats)
	assert.Equal(t, 0, s.Generation())
}

func TestSession_StepResumes(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession("1\n2\n3", 6.0, linesLibrary(t))
	require.NoError(t, err)
	assert.Equal(t, StateSearching, s.State())

	stats, err := s.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Generation)
	assert.True(t, stats.Progressed())
	assert.Equal(t, StateSearching, s.State())
	assert.Nil(t, s.Program())
	assert.Nil(t, s.Err())

	p, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFound, s.State())
	assert.Equal(t, `sum(map(parse)(split(input, "\n")))`, p.Expression())
	assert.Equal(t, 3, s.Generation())
}

func TestSession_StopsAtMatch(t *testing.T) {
	rec := &recorder{}
	s, err := NewSession("1\n2\n3", []any{"1", "2", "3"}, linesLibrary(t), WithReporter(rec))
	require.NoError(t, err)

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateFound, s.State())

	require.Len(t, rec.generations, 1)
	assert.True(t, rec.generations[0].Stopped)
	last := s.Graph().Arrow(digraph.ArrowID(s.Graph().ArrowCount() - 1))
	assert.Equal(t, "split", last.Op.Name)
}

func TestSession_TerminalStepReturnsStoredError(t *testing.T) {
	s, err := NewSession(1.0, 2.0, opList{identity}, WithMaxGenerations(1))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrSearchExhausted)

	_, again := s.Step(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, err, s.Err())
	assert.Equal(t, StateExhausted, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "searching", StateSearching.String())
	assert.Equal(t, "found", StateFound.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "unknown", State(42).String())
}

// -----------------------------------------------------------------------------
// Chains
// -----------------------------------------------------------------------------

func TestDeriveChain(t *testing.T) {
	p, err := DeriveChain(context.Background(), linesLibrary(t), 4,
		"1\n2\n3", []any{"1", "2", "3"}, 6.0)
	require.NoError(t, err)
	assert.Equal(t, `sum(map(parse)(split(input, "\n")))`, p.Expression())

	got, err := p.Run("4\n5")
	require.NoError(t, err)
	assert.Equal(t, 9.0, got)
}

func TestDeriveChain_Errors(t *testing.T) {
	_, err := DeriveChain(context.Background(), linesLibrary(t), 4, "only")
	assert.ErrorIs(t, err, ErrTooFewWaypoints)

	_, err = DeriveChain(context.Background(), opList{identity}, 2, 1.0, 1.0, 5.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leg 2")
	assert.ErrorIs(t, err, ErrSearchDeadEnd)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "found"},
		{&SearchFailure{Reason: ErrSearchDeadEnd}, "dead_end"},
		{&SearchFailure{Reason: ErrSearchExhausted}, "exhausted"},
		{ErrRoundTrip, "round_trip"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcome(tt.err))
	}
}
