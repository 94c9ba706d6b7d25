// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package maxsum

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/agent"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/constraint"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/directory"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/runner"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/variable"
)

type fixture struct {
	dir         *directory.Directory
	tracker     *runner.Tracker
	agents      []*agent.Agent
	solvers     []*Solver
	constraints []constraint.Constraint
}

func newFixture(t *testing.T, ids []dcop.ID, cs []constraint.Constraint, useRunner bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{dir: directory.New(), tracker: runner.NewTracker(), constraints: cs}

	for i, id := range ids {
		v, err := variable.NewRange(id, "", 0, 2)
		require.NoError(t, err)
		var mine []constraint.Constraint
		for _, c := range cs {
			if constraint.Involves(c, id) {
				mine = append(mine, c)
			}
		}
		a, err := agent.New("", v, mine, agent.WithRouter(f.dir), agent.WithTracker(f.tracker))
		require.NoError(t, err)
		s := New(a, append([]Option{WithSeed(int64(100 + i))}, opts...)...)
		a.SetSolver(s, useRunner)
		f.dir.Register(a.ID(), a)
		f.agents = append(f.agents, a)
		f.solvers = append(f.solvers, s)
	}
	for _, a := range f.agents {
		require.NoError(t, a.Init(context.Background()))
	}
	f.wait(t)
	t.Cleanup(func() {
		for _, a := range f.agents {
			a.Stop()
		}
	})
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.tracker.WaitIdle(ctx))
}

func (f *fixture) round(t *testing.T) {
	t.Helper()
	for _, a := range f.agents {
		require.NoError(t, a.Tick(context.Background()))
	}
	f.wait(t)
}

func (f *fixture) allFinished() bool {
	for _, a := range f.agents {
		if !a.Finished() {
			return false
		}
	}
	return true
}

func (f *fixture) cost(t *testing.T) float64 {
	t.Helper()
	asg := dcop.Assignment{}
	for _, a := range f.agents {
		v, err := a.Variable().Value()
		require.NoError(t, err)
		asg[a.ID()] = v
	}
	var total float64
	for _, c := range f.constraints {
		cost, err := c.Cost(asg)
		require.NoError(t, err)
		total += cost
	}
	return total
}

func neq(t *testing.T, ids ...dcop.ID) constraint.Constraint {
	t.Helper()
	c, err := constraint.NewInequality(1, ids...)
	require.NoError(t, err)
	return c
}

func TestMaxSum_LineConverges(t *testing.T) {
	for _, useRunner := range []bool{false, true} {
		t.Run(map[bool]string{false: "synchronous", true: "runner"}[useRunner], func(t *testing.T) {
			ids := []dcop.ID{"A", "B", "C"}
			f := newFixture(t, ids, []constraint.Constraint{neq(t, "A", "B"), neq(t, "B", "C")}, useRunner)

			for r := 0; r < 30 && !f.allFinished(); r++ {
				f.round(t)
			}
			require.True(t, f.allFinished())
			assert.Equal(t, 0.0, f.cost(t))
			for _, s := range f.solvers {
				assert.Equal(t, solver.PhaseReady, s.Phase())
				assert.GreaterOrEqual(t, s.Round(), DefaultStableRounds)
			}
		})
	}
}

func TestMaxSum_DampedLineConverges(t *testing.T) {
	ids := []dcop.ID{"A", "B", "C", "D"}
	cs := []constraint.Constraint{neq(t, "A", "B"), neq(t, "B", "C"), neq(t, "C", "D")}
	f := newFixture(t, ids, cs, false, WithDamping(0.3), WithStableRounds(4))

	for r := 0; r < 60 && !f.allFinished(); r++ {
		f.round(t)
	}
	require.True(t, f.allFinished())
	assert.Equal(t, 0.0, f.cost(t))
}

func TestMaxSum_LoopyGraphRepeatsExactly(t *testing.T) {
	ids := []dcop.ID{"A", "B", "C", "D", "E"}
	build := func() *fixture {
		cs := []constraint.Constraint{
			neq(t, "A", "B"), neq(t, "B", "C"), neq(t, "C", "A"),
			neq(t, "C", "D"), neq(t, "D", "E"), neq(t, "E", "B"), neq(t, "A", "D"),
		}
		f := newFixture(t, ids, cs, false, WithStableRounds(100), WithNoise(0.5))
		for r := 0; r < 12; r++ {
			f.round(t)
		}
		return f
	}

	first, second := build(), build()
	for i := range ids {
		v1, err := first.agents[i].Variable().Value()
		require.NoError(t, err)
		v2, err := second.agents[i].Variable().Value()
		require.NoError(t, err)
		assert.Equal(t, v1, v2, "agent %s", ids[i])
		assert.Equal(t, first.solvers[i].sent, second.solvers[i].sent, "agent %s tables", ids[i])
		assert.Equal(t, first.solvers[i].previous, second.solvers[i].previous, "agent %s beliefs", ids[i])
	}
	assert.Equal(t, first.cost(t), second.cost(t))
}

func TestMaxSum_IgnoresNonBinaryConstraints(t *testing.T) {
	ternary, err := constraint.NewThreshold(10, 1, "A", "B", "C")
	require.NoError(t, err)
	f := newFixture(t, []dcop.ID{"A", "B", "C"},
		[]constraint.Constraint{neq(t, "A", "B"), ternary}, false)

	assert.Equal(t, []dcop.ID{"B"}, f.solvers[0].peers)
	assert.Empty(t, f.solvers[2].peers, "C only shares the ternary constraint")

	f.round(t)
	assert.Equal(t, solver.PhaseReady, f.solvers[2].Phase(), "no peers, the gate is trivially complete")
}

func TestMaxSum_DomainAnnouncements(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, []constraint.Constraint{neq(t, "A", "B")}, false)
	assert.Equal(t, []int{0, 1, 2}, f.solvers[0].domains["B"])
	assert.Equal(t, int64(2), f.dir.SentCounts()[TypeDomain])
}

func TestMaxSum_StaleAndMalformedIgnored(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, []constraint.Constraint{neq(t, "A", "B")}, false)
	f.round(t)
	s := f.solvers[0]

	s.Push(message.New(TypeTable, "B", 0, message.WithTable("table", dcop.CostTable{0: 1})))
	s.Push(message.New(TypeTable, "B", 5))
	s.Push(message.New("unknown", "B", 1))
	assert.Equal(t, solver.PhaseReady, s.Phase())
	assert.Equal(t, 1, s.Round())
}

func TestMaxSum_ResetForgetsDomains(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, []constraint.Constraint{neq(t, "A", "B")}, false)
	f.round(t)
	f.dir.Reset()

	s := f.solvers[0]
	assert.Nil(t, s.domains)
	assert.Equal(t, solver.PhaseUninitialized, s.Phase())
	assert.False(t, f.agents[0].Variable().IsSet())
}
