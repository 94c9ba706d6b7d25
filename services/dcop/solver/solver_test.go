// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

func TestPhaseMachine_Transitions(t *testing.T) {
	pm := NewPhaseMachine()

	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseUninitialized, PhaseReady, true},
		{PhaseUninitialized, PhaseAwaitingPeerData, false},
		{PhaseReady, PhaseAwaitingPeerData, true},
		{PhaseReady, PhaseCommitted, false},
		{PhaseAwaitingPeerData, PhaseAwaitingDerivedResult, true},
		{PhaseAwaitingDerivedResult, PhaseCommitted, true},
		{PhaseCommitted, PhaseReady, true},
		{PhaseCommitted, PhaseTerminated, true},
		{PhaseTerminated, PhaseReady, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, pm.CanTransition(tt.from, tt.to))
		})
	}

	for _, p := range AllPhases() {
		assert.True(t, pm.CanTransition(p, PhaseUninitialized), "reset from %s", p)
	}
}

func TestPhaseState_RejectsInvalid(t *testing.T) {
	var s PhaseState
	err := s.To(PhaseCommitted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PhaseUninitialized, s.Get())

	require.NoError(t, s.To(PhaseReady))
	require.NoError(t, s.To(PhaseAwaitingPeerData))
	s.Reset()
	assert.Equal(t, PhaseUninitialized, s.Get())
	assert.Equal(t, "Phase(42)", Phase(42).String())
}

func TestAccumulator_GateFiresOnlyWhenComplete(t *testing.T) {
	neighbours := []dcop.ID{"a", "b", "c"}
	acc := NewAccumulator[int]()

	acc.Put("a", 1)
	acc.Put("b", 2)
	assert.False(t, acc.Fire(neighbours), "two of three")

	acc.Put("a", 5)
	assert.False(t, acc.Fire(neighbours), "duplicate source does not count twice")
	v, _ := acc.Get("a")
	assert.Equal(t, 5, v, "later duplicate overwrites")

	acc.Put("stranger", 9)
	assert.Equal(t, 3, acc.Len())
	assert.False(t, acc.Complete(neighbours), "non-neighbours are ignored")

	acc.Put("c", 3)
	assert.True(t, acc.Fire(neighbours))
	assert.False(t, acc.Fire(neighbours), "fires exactly once")
	assert.True(t, acc.Fired())

	entries := acc.Entries(neighbours)
	assert.Len(t, entries, 3)
	_, ok := entries["stranger"]
	assert.False(t, ok)

	acc.Clear()
	assert.False(t, acc.Fired())
	assert.Zero(t, acc.Len())
}

func TestAccumulator_AnyOrderFiresOnce(t *testing.T) {
	neighbours := []dcop.ID{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		order := append([]dcop.ID(nil), neighbours...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		acc := NewAccumulator[float64]()
		fires := 0
		for i, id := range order {
			acc.Put(id, float64(i))
			if acc.Fire(neighbours) {
				fires++
				assert.Equal(t, len(order)-1, i, "fires on the last neighbour")
			}
		}
		assert.Equal(t, 1, fires)
	}
}

func TestAccumulator_EmptyNeighbourhood(t *testing.T) {
	acc := NewAccumulator[int]()
	assert.True(t, acc.Fire(nil))
}

func TestRoundBuffer(t *testing.T) {
	b := NewRoundBuffer[int]()
	b.For(1).Put("a", 1)
	b.For(3).Put("a", 3)
	assert.Equal(t, 2, b.Len())

	b.DropBefore(2)
	assert.Equal(t, 1, b.Len())
	v, ok := b.For(3).Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	b.Clear()
	assert.Zero(t, b.Len())

	assert.Equal(t, RoundStale, Classify(4, 3))
	assert.Equal(t, RoundCurrent, Classify(4, 4))
	assert.Equal(t, RoundFuture, Classify(4, 5))
}

func TestWinsTieBreak(t *testing.T) {
	tests := []struct {
		name       string
		self       dcop.ID
		gain       float64
		neighbours map[dcop.ID]float64
		want       bool
	}{
		{"strictly best", "b", 3, map[dcop.ID]float64{"a": 2, "c": 1}, true},
		{"beaten", "a", 2, map[dcop.ID]float64{"b": 3}, false},
		{"tie lower id wins", "a", 2, map[dcop.ID]float64{"b": 2, "c": 1}, true},
		{"tie higher id loses", "b", 2, map[dcop.ID]float64{"a": 2}, false},
		{"zero gain never commits", "a", 0, map[dcop.ID]float64{"b": -1}, false},
		{"negative gain never commits", "a", -1, nil, false},
		{"isolated agent", "a", 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WinsTieBreak(tt.self, tt.gain, tt.neighbours))
		})
	}
}

func TestWinsTieBreak_ExactlyOneWinnerAmongTied(t *testing.T) {
	ids := []dcop.ID{"d", "b", "a", "c"}
	gains := map[dcop.ID]float64{"a": 4, "b": 4, "c": 4, "d": 4}

	for run := 0; run < 2; run++ {
		var winners []dcop.ID
		for _, self := range ids {
			others := make(map[dcop.ID]float64)
			for id, g := range gains {
				if id != self {
					others[id] = g
				}
			}
			if WinsTieBreak(self, gains[self], others) {
				winners = append(winners, self)
			}
		}
		assert.Equal(t, []dcop.ID{"a"}, winners)
	}
}
