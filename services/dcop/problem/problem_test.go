// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

func TestLine(t *testing.T) {
	p, err := Line(4, 3)
	require.NoError(t, err)
	assert.Equal(t, "line-4", p.Name)
	require.Len(t, p.Variables, 4)
	assert.Equal(t, 3, p.Edges())
	assert.Equal(t, []int{0, 1, 2}, p.Variables[0].Domain())

	assert.Equal(t, []dcop.ID{"x01"}, p.Neighbours("x00"))
	assert.Equal(t, []dcop.ID{"x00", "x02"}, p.Neighbours("x01"))
	assert.Len(t, p.ConstraintsFor("x03"), 1)

	v, ok := p.Variable("x02")
	require.True(t, ok)
	assert.Equal(t, dcop.ID("x02"), v.ID())
	_, ok = p.Variable("nope")
	assert.False(t, ok)
}

func TestRing(t *testing.T) {
	p, err := Ring(5, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Edges())
	assert.Equal(t, []dcop.ID{"x01", "x04"}, p.Neighbours("x00"))

	_, err = Ring(2, 2)
	assert.ErrorIs(t, err, ErrTooFewAgents)
}

func TestRandomGraph(t *testing.T) {
	a, err := RandomGraph(12, 0.3, 3, 42)
	require.NoError(t, err)
	b, err := RandomGraph(12, 0.3, 3, 42)
	require.NoError(t, err)

	assert.Equal(t, edgeSet(a), edgeSet(b), "same seed, same graph")
	assert.GreaterOrEqual(t, a.Edges(), 11, "spanning path keeps it connected")
	for _, v := range a.Variables {
		assert.NotEmpty(t, a.Neighbours(v.ID()), "%s is isolated", v.ID())
	}

	full, err := RandomGraph(5, 1, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, full.Edges())
}

func TestGenerators_Validation(t *testing.T) {
	_, err := Line(1, 3)
	assert.ErrorIs(t, err, ErrTooFewAgents)
	_, err = Line(3, 0)
	assert.ErrorIs(t, err, ErrInvalidDomain)
	_, err = RandomGraph(5, 0, 3, 1)
	assert.ErrorIs(t, err, ErrInvalidDensity)
	_, err = RandomGraph(5, 1.5, 3, 1)
	assert.ErrorIs(t, err, ErrInvalidDensity)
}

func TestID_PadsToSortOrder(t *testing.T) {
	assert.Equal(t, dcop.ID("x05"), ID(5, 10))
	assert.Equal(t, dcop.ID("x005"), ID(5, 101))
	assert.True(t, dcop.Less(ID(9, 20), ID(10, 20)))
}

func edgeSet(p *Problem) map[string]bool {
	out := make(map[string]bool)
	for _, c := range p.Constraints {
		ids := c.Involved()
		out[string(ids[0])+"-"+string(ids[1])] = true
	}
	return out
}
