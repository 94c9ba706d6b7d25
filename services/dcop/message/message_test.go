// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

func TestNew_CopiesPayloads(t *testing.T) {
	a := dcop.Assignment{"x": 1}
	table := dcop.CostTable{0: 1, 1: 2}

	m := New("probe", "src", 3,
		Int("value", 2),
		Number("gain", 0.5),
		WithAssignment("ctx", a),
		WithTable("costs", table),
	)

	a["x"] = 99
	table[0] = 99

	assert.Equal(t, "probe", m.Type())
	assert.Equal(t, dcop.ID("src"), m.Source())
	assert.Equal(t, 3, m.Round())

	got, ok := m.Assignment("ctx")
	require.True(t, ok)
	assert.Equal(t, 1, got["x"])

	tbl, ok := m.Table("costs")
	require.True(t, ok)
	assert.Equal(t, 1.0, tbl[0])

	v, ok := m.Int("value")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	g, ok := m.Number("gain")
	require.True(t, ok)
	assert.Equal(t, 0.5, g)

	assert.Equal(t, []string{"costs", "ctx", "gain", "value"}, m.Fields())
}

func TestAccessors_ReturnCopies(t *testing.T) {
	m := New("probe", "src", 0, WithTable("costs", dcop.CostTable{0: 1}))

	first, _ := m.Table("costs")
	first[0] = 42

	second, _ := m.Table("costs")
	assert.Equal(t, 1.0, second[0])
}

func TestMissingFields(t *testing.T) {
	m := New("empty", "src", 0)
	_, ok := m.Number("x")
	assert.False(t, ok)
	_, ok = m.Assignment("x")
	assert.False(t, ok)
	_, ok = m.Table("x")
	assert.False(t, ok)
	assert.Contains(t, m.String(), "empty from=src")
}
