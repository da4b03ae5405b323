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
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/derive/services/derive/catalog"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

// opList is a fixed OpSource.
type opList []*op.Op

func (l opList) Ops() []*op.Op { return l }

// identity returns its input, producing a self-derivation on every value.
var identity = &op.Op{
	Name:      "id",
	Signature: op.Signature{Params: []shape.Shape{shape.Number()}, Returns: shape.Number()},
	Arity:     1,
	Impl:      func(args ...any) (any, error) { return args[0], nil },
}

// flip maps x to 1-x, so the second generation derives the root again.
var flip = &op.Op{
	Name:      "flip",
	Signature: op.Signature{Params: []shape.Shape{shape.Number()}, Returns: shape.Number()},
	Arity:     1,
	Impl:      func(args ...any) (any, error) { return 1 - args[0].(float64), nil },
}

func mustNew(t *testing.T, root any, opts ...GraphOption) *Digraph {
	t.Helper()
	g, err := New(root, opts...)
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	g := mustNew(t, []int{1, 2})
	assert.Equal(t, 1, g.ValueCount())
	assert.Equal(t, ValueID(0), g.Root().ID)
	assert.True(t, shape.Equal([]any{1.0, 2.0}, g.Root().Data))
	assert.Equal(t, 0, g.Generation())

	_, err := New(true)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestAllocate_Unique(t *testing.T) {
	g := mustNew(t, "root")

	a, novel, err := g.Allocate([]any{1.0, math.NaN()}, false)
	require.NoError(t, err)
	assert.True(t, novel)

	b, novel, err := g.Allocate([]float64{1, math.NaN()}, false)
	require.NoError(t, err)
	assert.False(t, novel)
	assert.Same(t, a, b)
	assert.False(t, b.Literal)

	c, _, err := g.Allocate([]any{1.0, math.NaN()}, true)
	require.NoError(t, err)
	assert.Same(t, a, c)
	assert.False(t, c.Literal, "only the creating call decides Literal")

	d, novel, err := g.Allocate("hinted", true)
	require.NoError(t, err)
	assert.True(t, novel)
	assert.True(t, d.Literal)

	found, ok := g.Lookup([]any{1.0, math.NaN()})
	require.True(t, ok)
	assert.Same(t, a, found)

	_, ok = g.Lookup("missing")
	assert.False(t, ok)
	require.NoError(t, g.Validate())
}

func TestExpand_SplitGeneration(t *testing.T) {
	input := "1000\n2000\n3000\n\n4000"
	g := mustNew(t, input)

	var reported []string
	stats, err := g.Expand(context.Background(), opList{catalog.Split, catalog.Parse}, func(out *Value, a *Arrow, novel bool) bool {
		reported = append(reported, g.FormatArrow(a))
		return false
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Generation)
	// split(input, input), split(input, "\n\n"), split(input, "\n"), parse(input)
	assert.Equal(t, 4, stats.NewArrows)
	assert.Len(t, reported, 4)
	// ["", ""], both groups, all lines, NaN, plus the two delimiters.
	assert.Equal(t, 6, stats.NewValues)
	assert.False(t, stats.Stopped)

	groups, ok := g.Lookup([]any{"1000\n2000\n3000", "4000"})
	require.True(t, ok)
	require.Len(t, groups.In, 1)
	assert.Equal(t, `split(input, "\n\n")`, g.FormatDerivation(groups.ID))
	split := g.Arrow(groups.In[0])
	assert.False(t, split.LiteralInput(0))
	assert.True(t, split.LiteralInput(1), "the delimiter came from the hint")

	delim, ok := g.Lookup("\n\n")
	require.True(t, ok)
	assert.True(t, delim.Literal)
	assert.Equal(t, 1, delim.Generation)

	nan, ok := g.Lookup(math.NaN())
	require.True(t, ok)
	assert.False(t, nan.Literal)

	require.NoError(t, g.Validate())
}

func TestExpand_FrozenSnapshot(t *testing.T) {
	g := mustNew(t, 0.0)

	_, err := g.Expand(context.Background(), opList{flip}, nil)
	require.NoError(t, err)
	// Only the root was frozen: flip(0) = 1, and 1 is not flipped yet.
	assert.Equal(t, 2, g.ValueCount())
	assert.Equal(t, 1, g.ArrowCount())

	stats, err := g.Expand(context.Background(), opList{flip}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewArrows, "flip(1) = 0")
	assert.Equal(t, 0, stats.NewValues)
	assert.Equal(t, 1, stats.Duplicates, "flip(0) already applied")

	root := g.Root()
	require.Len(t, root.In, 1, "the graph now cycles back to the root")

	stats, err = g.Expand(context.Background(), opList{flip}, nil)
	require.NoError(t, err)
	assert.False(t, stats.Progressed())
	assert.Equal(t, 2, stats.Duplicates)
	require.NoError(t, g.Validate())
}

func TestExpand_SelfDerivationRetained(t *testing.T) {
	g := mustNew(t, 7.0)

	var novelFlags []bool
	_, err := g.Expand(context.Background(), opList{identity}, func(out *Value, a *Arrow, novel bool) bool {
		novelFlags = append(novelFlags, novel)
		return false
	})
	require.NoError(t, err)

	require.Equal(t, 1, g.ArrowCount())
	a := g.Arrow(0)
	assert.True(t, a.SelfDerived())
	assert.Equal(t, []bool{false}, novelFlags)
	assert.Equal(t, []ArrowID{0}, g.Root().In)
	assert.Equal(t, []ArrowID{0}, g.Root().Out)
}

func TestExpand_CallbackStops(t *testing.T) {
	g := mustNew(t, "a,b c")

	calls := 0
	stats, err := g.Expand(context.Background(), opList{catalog.Split, catalog.Parse}, func(out *Value, a *Arrow, novel bool) bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, stats.Stopped)
	assert.Equal(t, 1, g.ArrowCount())
}

func TestExpand_HintsFilteredByShape(t *testing.T) {
	pad := &op.Op{
		Name: "pad",
		Signature: op.Signature{
			Params:  []shape.Shape{shape.String(), shape.Char()},
			Returns: shape.String(),
		},
		Arity: 2,
		Impl: func(args ...any) (any, error) {
			return args[1].(string) + args[0].(string), nil
		},
		ParamHints: []op.ParamHint{nil, func(any) []any {
			return []any{"ab", 3.0, "x", true}
		}},
	}
	g := mustNew(t, "ab")

	_, err := g.Expand(context.Background(), opList{pad}, nil)
	require.NoError(t, err)

	// Only "x" is a char; "ab" is the root and not a char either.
	assert.Equal(t, 1, g.ArrowCount())
	_, ok := g.Lookup("xab")
	assert.True(t, ok)
	_, ok = g.Lookup(3.0)
	assert.False(t, ok)
}

func TestExpand_RejectedApplications(t *testing.T) {
	failing := &op.Op{
		Name:      "fail",
		Signature: op.Signature{Params: []shape.Shape{shape.String()}, Returns: shape.Number()},
		Arity:     1,
		Impl:      func(args ...any) (any, error) { return nil, errors.New("cannot") },
	}
	unsupported := &op.Op{
		Name:      "bool",
		Signature: op.Signature{Params: []shape.Shape{shape.String()}, Returns: shape.Number()},
		Arity:     1,
		Impl:      func(args ...any) (any, error) { return true, nil },
	}
	g := mustNew(t, "x")

	stats, err := g.Expand(context.Background(), opList{failing, unsupported}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rejected)
	assert.False(t, stats.Progressed())
}

func TestExpand_MalformedOp(t *testing.T) {
	broken := &op.Op{
		Name:      "broken",
		Signature: op.Signature{Params: []shape.Shape{shape.String()}, Returns: shape.String()},
		Arity:     2,
		Impl:      func(args ...any) (any, error) { return "", nil },
	}
	g := mustNew(t, "x")

	_, err := g.Expand(context.Background(), opList{broken}, nil)
	assert.ErrorIs(t, err, op.ErrMalformedOp)
}

func TestExpand_Limits(t *testing.T) {
	t.Run("values", func(t *testing.T) {
		g := mustNew(t, "1\n2", WithMaxValues(2))
		_, err := g.Expand(context.Background(), opList{catalog.Split}, nil)
		assert.ErrorIs(t, err, ErrMaxValuesExceeded)
		assert.LessOrEqual(t, g.ValueCount(), 2)
	})

	t.Run("arrows", func(t *testing.T) {
		g := mustNew(t, "1\n2", WithMaxArrows(1))
		_, err := g.Expand(context.Background(), opList{catalog.Split}, nil)
		assert.ErrorIs(t, err, ErrMaxArrowsExceeded)
		assert.Equal(t, 1, g.ArrowCount())
	})
}

func TestFindArrow(t *testing.T) {
	g := mustNew(t, "a b")
	_, err := g.Expand(context.Background(), opList{catalog.Split}, nil)
	require.NoError(t, err)

	space, ok := g.Lookup(" ")
	require.True(t, ok)

	a := g.FindArrow(catalog.Split, []ValueID{0, space.ID})
	require.NotNil(t, a)
	assert.Equal(t, `split("a b", " ") = ["a", "b"]`, g.FormatArrow(a))

	assert.Nil(t, g.FindArrow(catalog.Parse, []ValueID{0}))
	assert.Nil(t, g.FindArrow(catalog.Split, nil))
	assert.Nil(t, g.FindArrow(catalog.Split, []ValueID{99, 0}))
}

func TestFormatDerivation_CycleSafe(t *testing.T) {
	g := mustNew(t, 0.0)
	a, _, err := g.Allocate(1.0, false)
	require.NoError(t, err)
	b, _, err := g.Allocate(2.0, false)
	require.NoError(t, err)

	// a <- flip(b), b <- flip(a): a cycle with no path back to the root.
	_, err = g.link(flip, []ValueID{b.ID}, nil, a.ID)
	require.NoError(t, err)
	_, err = g.link(flip, []ValueID{a.ID}, nil, b.ID)
	require.NoError(t, err)

	assert.Equal(t, "flip(flip(<cycle v1>))", g.FormatDerivation(a.ID))
	assert.Equal(t, "input", g.FormatDerivation(g.Root().ID))
	assert.Equal(t, "<missing v42>", g.FormatDerivation(42))
}

func TestValidate_DetectsDuplicates(t *testing.T) {
	g := mustNew(t, 0.0)
	_, err := g.Expand(context.Background(), opList{flip}, nil)
	require.NoError(t, err)

	// Forge a second application of the same op to the same input.
	_, err = g.link(flip, []ValueID{0}, nil, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Validate(), ErrInconsistent)
}
