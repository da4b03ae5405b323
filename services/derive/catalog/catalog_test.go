// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/derive/services/derive/library"
	"github.com/AleutianAI/derive/services/derive/op"
	"github.com/AleutianAI/derive/services/derive/shape"
)

func call(t *testing.T, o *op.Op, args ...any) any {
	t.Helper()
	got, err := o.Call(args...)
	require.NoError(t, err)
	return got
}

func TestCatalog_Validates(t *testing.T) {
	for _, o := range Default() {
		assert.NoError(t, o.Validate(), o.Name)
	}
	_, err := library.New(Default(), Combinators())
	require.NoError(t, err)
}

func TestSplit(t *testing.T) {
	got := call(t, Split, "1000\n2000\n\n3000", "\n\n")
	assert.True(t, shape.Equal([]any{"1000\n2000", "3000"}, got))

	_, err := Split.Call("abc", "")
	assert.Error(t, err)

	hint := Split.Hint(1)
	require.NotNil(t, hint)
	assert.Equal(t, []any{"\n\n", "\n"}, hint("1000\n2000\n\n3000"))
	assert.Equal(t, []any{"\r\n\r\n", "\r\n", "\n"}, hint("a\r\n\r\nb"))
	assert.Equal(t, []any{",", " "}, hint("1, 2"))
	assert.Empty(t, hint("plain"))
	assert.Empty(t, hint(42.0))
}

func TestParse(t *testing.T) {
	assert.Equal(t, 1000.0, call(t, Parse, "1000"))
	assert.Equal(t, 12.5, call(t, Parse, " 12.5\r\n"))
	assert.True(t, math.IsNaN(call(t, Parse, "1000\n2000").(float64)))
	assert.True(t, math.IsNaN(call(t, Parse, "").(float64)))
}

func TestReductions(t *testing.T) {
	assert.Equal(t, 6000.0, call(t, Sum, []any{1000.0, 2000.0, 3000.0}))
	assert.Equal(t, 0.0, call(t, Sum, []any{}))
	assert.True(t, math.IsNaN(call(t, Sum, []any{1.0, math.NaN()}).(float64)))

	assert.Equal(t, 3000.0, call(t, Max, []any{1000.0, 3000.0, 2000.0}))
	assert.Equal(t, math.Inf(-1), call(t, Max, []any{}))
	assert.True(t, math.IsNaN(call(t, Max, []any{5.0, math.NaN(), 1.0}).(float64)))

	_, err := Sum.Call([]any{"1"})
	assert.Error(t, err)
}

func TestSortDescAndSlice(t *testing.T) {
	got := call(t, SortDesc, []any{6000.0, math.NaN(), 24000.0, 4000.0})
	assert.True(t, shape.Equal([]any{24000.0, 6000.0, 4000.0, math.NaN()}, got), shape.Format(got))

	input := []any{24000.0, 11000.0, 10000.0}
	assert.True(t, shape.Equal([]any{24000.0, 11000.0}, call(t, Slice, input, 2.0)))
	assert.True(t, shape.Equal(input, call(t, Slice, input, 10.0)))
	assert.True(t, shape.Equal([]any{}, call(t, Slice, input, -1.0)))
	assert.True(t, shape.Equal([]any{24000.0}, call(t, Slice, input, 1.9)))

	// The result must not alias the input.
	sliced := call(t, Slice, input, 2.0).([]any)
	sliced[0] = 0.0
	assert.Equal(t, 24000.0, input[0])

	assert.Equal(t, SliceCounts, Slice.Hint(1)(input))
}

func TestByName(t *testing.T) {
	ops, err := ByName("sum", "split")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Same(t, Sum, ops[0])
	assert.Same(t, Split, ops[1])

	ops, err = ByName()
	require.NoError(t, err)
	assert.Len(t, ops, len(Names()))

	_, err = ByName("sum", "median")
	assert.ErrorIs(t, err, library.ErrUnknownOp)
}

func TestMapSplit_PerElementDelimiters(t *testing.T) {
	lifted := op.Map.Apply(Split)
	hint := lifted.Hint(1)
	require.NotNil(t, hint)

	assert.Equal(t, []any{"\n"}, hint([]any{"1000\n2000\n3000", "4000"}))

	got := call(t, lifted, []any{"1000\n2000\n3000", "4000"}, "\n")
	assert.True(t, shape.Equal([]any{[]any{"1000", "2000", "3000"}, []any{"4000"}}, got))
}
