// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

func unary(name string, in, out shape.Shape) *op.Op {
	return &op.Op{
		Name:      name,
		Signature: op.Signature{Params: []shape.Shape{in}, Returns: out},
		Arity:     1,
		Impl:      func(args ...any) (any, error) { return args[0], nil },
	}
}

func names(ops []*op.Op) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.Name
	}
	return out
}

func TestNew_Validates(t *testing.T) {
	_, err := New([]*op.Op{{Name: "broken", Arity: 1}}, nil)
	assert.ErrorIs(t, err, op.ErrMalformedOp)

	a := unary("a", shape.String(), shape.Number())
	b := unary("a", shape.Number(), shape.Number())
	_, err = New([]*op.Op{a, b}, nil)
	assert.ErrorIs(t, err, ErrDuplicateOp)

	_, err = New([]*op.Op{a}, []*op.Combinator{{Name: "nolift"}})
	assert.ErrorIs(t, err, op.ErrMalformedOp)
}

func TestDeriveNextOp_Order(t *testing.T) {
	second := &op.Combinator{Name: "twice", Lift: func(p *op.Op) *op.Op {
		c := *p
		c.Name = "twice(" + p.Name + ")"
		c.Parent, c.Via, c.Depth = nil, nil, 0
		return &c
	}}
	lib, err := New([]*op.Op{
		unary("a", shape.String(), shape.Number()),
		unary("b", shape.Number(), shape.Number()),
	}, []*op.Combinator{op.Map, second})
	require.NoError(t, err)

	n, err := lib.Seed(5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []string{
		"a", "b",
		"map(a)", "twice(a)",
		"map(b)", "twice(b)",
		"map(map(a))",
	}, names(lib.Ops()))

	mapA, ok := lib.Lookup("map(a)")
	require.True(t, ok)
	base, _ := lib.Lookup("a")
	assert.Same(t, base, mapA.Parent)
	assert.Equal(t, []string{"map(a)", "twice(a)"}, names(lib.Children(base)))
}

func TestDeriveNextOp_Deterministic(t *testing.T) {
	build := func() []string {
		lib, err := New([]*op.Op{
			unary("a", shape.String(), shape.Number()),
			unary("b", shape.Number(), shape.String()),
		}, []*op.Combinator{op.Map})
		require.NoError(t, err)
		_, err = lib.Seed(8)
		require.NoError(t, err)
		return names(lib.Ops())
	}
	assert.Equal(t, build(), build())
}

func TestDeriveNextOp_Exhausted(t *testing.T) {
	t.Run("no combinators", func(t *testing.T) {
		lib, err := New([]*op.Op{unary("a", shape.String(), shape.Number())}, nil)
		require.NoError(t, err)
		_, err = lib.DeriveNextOp()
		assert.ErrorIs(t, err, ErrLibraryExhausted)
	})

	t.Run("max depth", func(t *testing.T) {
		lib, err := New([]*op.Op{
			unary("a", shape.String(), shape.Number()),
			unary("b", shape.Number(), shape.Number()),
		}, []*op.Combinator{op.Map}, WithMaxDepth(2))
		require.NoError(t, err)

		// a, b -> map(a), map(b) -> map(map(a)), map(map(b))
		n, err := lib.Seed(10)
		assert.ErrorIs(t, err, ErrLibraryExhausted)
		assert.Equal(t, 4, n)
		assert.Equal(t, 6, lib.Size())

		_, err = lib.DeriveNextOp()
		assert.ErrorIs(t, err, ErrLibraryExhausted)
	})
}

func TestQueries(t *testing.T) {
	lib, err := New([]*op.Op{
		unary("len", shape.String(), shape.Number()),
		unary("neg", shape.Number(), shape.Number()),
	}, []*op.Combinator{op.Map})
	require.NoError(t, err)
	_, err = lib.Seed(2)
	require.NoError(t, err)

	assert.Equal(t, []string{"len", "neg"}, names(lib.OpsThatReturn(shape.Number())))
	assert.Equal(t, []string{"map(len)", "map(neg)"}, names(lib.OpsThatReturn(shape.ListOf(shape.Number()))))

	assert.Equal(t, []string{"len"}, names(lib.OpsCompatibleWith("abc")))
	assert.Equal(t, []string{"map(neg)"}, names(lib.OpsCompatibleWith([]any{1.0})))
	// The empty list satisfies every list shape.
	assert.Equal(t, []string{"map(len)", "map(neg)"}, names(lib.OpsCompatibleWith([]any{})))

	_, ok := lib.Lookup("missing")
	assert.False(t, ok)
	assert.Len(t, lib.Combinators(), 1)
}
