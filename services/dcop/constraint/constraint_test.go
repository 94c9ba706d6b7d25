// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

func TestInequality(t *testing.T) {
	c, err := NewInequality(1, "b", "a", "a")
	require.NoError(t, err)
	assert.Equal(t, []dcop.ID{"a", "b"}, c.Involved())
	assert.True(t, Binary(c))
	assert.True(t, Involves(c, "a"))
	assert.False(t, Involves(c, "z"))
	assert.Equal(t, []dcop.ID{"b"}, Others(c, "a"))

	tests := []struct {
		name string
		a    dcop.Assignment
		want float64
	}{
		{"equal", dcop.Assignment{"a": 1, "b": 1}, 1},
		{"differ", dcop.Assignment{"a": 0, "b": 1}, 0},
		{"extra keys ignored", dcop.Assignment{"a": 2, "b": 2, "c": 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Cost(tt.a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = c.Cost(dcop.Assignment{"a": 1})
	assert.ErrorIs(t, err, ErrIncompleteAssignment)
}

func TestInequality_NAry(t *testing.T) {
	c, err := NewInequality(2, "a", "b", "c")
	require.NoError(t, err)
	got, err := c.Cost(dcop.Assignment{"a": 0, "b": 0, "c": 0})
	require.NoError(t, err)
	assert.Equal(t, 6.0, got, "three equal pairs")
}

func TestCostIf_DoesNotMutate(t *testing.T) {
	c, err := NewInequality(1, "a", "b")
	require.NoError(t, err)
	a := dcop.Assignment{"a": 0, "b": 1}

	got, err := c.CostIf(a, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, 0, a["a"])

	_, err = c.CostIf(a, "z", 1)
	assert.ErrorIs(t, err, ErrNotInvolved)
}

func TestTooFewVariables(t *testing.T) {
	_, err := NewInequality(1, "a", "a")
	assert.ErrorIs(t, err, ErrTooFewVariables)
	_, err = NewThreshold(1, 1, "a")
	assert.ErrorIs(t, err, ErrTooFewVariables)
	_, err = NewMatrix("a", "a", 0, 0, [][]float64{{0}})
	assert.ErrorIs(t, err, ErrTooFewVariables)
}

func TestMatrix(t *testing.T) {
	costs := [][]float64{
		{0, 5},
		{3, 1},
	}
	c, err := NewMatrix("x", "y", 1, 10, costs)
	require.NoError(t, err)
	costs[0][0] = 99

	got, err := c.Cost(dcop.Assignment{"x": 1, "y": 10})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got, "matrix is copied on construction")

	got, err = c.CostIf(dcop.Assignment{"x": 1, "y": 10}, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	_, err = c.Lookup(3, 10)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = c.Cost(dcop.Assignment{"x": 1, "y": 9})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = NewMatrix("x", "y", 0, 0, [][]float64{{0, 1}, {2}})
	assert.Error(t, err)
}

func TestThreshold(t *testing.T) {
	c, err := NewThreshold(3, 2, "a", "b")
	require.NoError(t, err)

	got, err := c.Cost(dcop.Assignment{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	got, err = c.Cost(dcop.Assignment{"a": 3, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)
}
