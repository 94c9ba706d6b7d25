// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dcop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a.String())
}

func TestSortIDs(t *testing.T) {
	ids := []ID{"c", "a", "b"}
	assert.Equal(t, []ID{"a", "b", "c"}, SortIDs(ids))
	assert.True(t, Less("a", "b"))
	assert.False(t, Less("b", "b"))
}

func TestAssignment_CloneIsIndependent(t *testing.T) {
	a := Assignment{"x": 1}
	b := a.Clone()
	b["x"] = 2
	b["y"] = 3

	assert.Equal(t, 1, a["x"])
	_, ok := a.Lookup("y")
	assert.False(t, ok)

	c := a.With("z", 9)
	assert.Len(t, a, 1)
	assert.Equal(t, 9, c["z"])

	var nilAssign Assignment
	assert.NotNil(t, nilAssign.Clone())
}

func TestCostTable(t *testing.T) {
	t.Run("argmin prefers lowest value on ties", func(t *testing.T) {
		ct := CostTable{2: 1, 0: 1, 1: 3}
		v, ok := ct.ArgMin()
		require.True(t, ok)
		assert.Equal(t, 0, v)
		assert.Equal(t, []int{0, 2}, ct.Optimal())
	})

	t.Run("empty table", func(t *testing.T) {
		ct := CostTable{}
		_, ok := ct.ArgMin()
		assert.False(t, ok)
		assert.True(t, math.IsInf(ct.Min(), 1))
		ct.Normalize()
		assert.Empty(t, ct)
	})

	t.Run("add and normalize", func(t *testing.T) {
		ct := NewCostTable([]int{0, 1, 2})
		ct.Add(CostTable{0: 5, 1: 3, 2: 4, 7: 100})
		ct.Normalize()
		assert.Equal(t, CostTable{0: 2, 1: 0, 2: 1}, ct)
	})

	t.Run("clone is independent", func(t *testing.T) {
		ct := CostTable{0: 1}
		cp := ct.Clone()
		cp[0] = 9
		assert.Equal(t, 1.0, ct[0])
	})
}
