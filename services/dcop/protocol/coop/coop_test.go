// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coop

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

func newFixture(t *testing.T, ids []dcop.ID, edges [][2]dcop.ID, useRunner bool) *fixture {
	t.Helper()
	f := &fixture{dir: directory.New(), tracker: runner.NewTracker()}
	for _, e := range edges {
		c, err := constraint.NewInequality(1, e[0], e[1])
		require.NoError(t, err)
		f.constraints = append(f.constraints, c)
	}
	for _, id := range ids {
		v, err := variable.NewRange(id, "", 0, 2)
		require.NoError(t, err)
		var mine []constraint.Constraint
		for _, c := range f.constraints {
			if constraint.Involves(c, id) {
				mine = append(mine, c)
			}
		}
		a, err := agent.New("", v, mine, agent.WithRouter(f.dir), agent.WithTracker(f.tracker))
		require.NoError(t, err)
		s := New(a)
		a.SetSolver(s, useRunner)
		f.dir.Register(a.ID(), a)
		f.agents = append(f.agents, a)
		f.solvers = append(f.solvers, s)
	}
	for _, a := range f.agents {
		require.NoError(t, a.Init(context.Background()))
	}
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

// drive starts the lowest unfinished agent until every agent is done.
func (f *fixture) drive(t *testing.T, limit int) {
	t.Helper()
	for i := 0; i < limit; i++ {
		var next *agent.Agent
		for _, a := range f.agents {
			if !a.Finished() && (next == nil || dcop.Less(a.ID(), next.ID())) {
				next = a
			}
		}
		if next == nil {
			return
		}
		f.dir.Send(next.ID(), StartMessage())
		f.wait(t)
	}
}

func (f *fixture) value(t *testing.T, i int) int {
	t.Helper()
	v, err := f.agents[i].Variable().Value()
	require.NoError(t, err)
	return v
}

func (f *fixture) cost(t *testing.T) float64 {
	t.Helper()
	asg := dcop.Assignment{}
	for i, a := range f.agents {
		asg[a.ID()] = f.value(t, i)
	}
	var total float64
	for _, c := range f.constraints {
		cost, err := c.Cost(asg)
		require.NoError(t, err)
		total += cost
	}
	return total
}

func TestCoop_LineSynchronousTrace(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B", "C"}, [][2]dcop.ID{{"A", "B"}, {"B", "C"}}, false)

	f.dir.Send("A", StartMessage())

	for i, s := range f.solvers {
		assert.Equal(t, StatusDone, s.Status(), "agent %d", i)
		assert.Equal(t, solver.PhaseTerminated, s.Phase())
	}
	assert.Equal(t, 0, f.value(t, 0))
	assert.Equal(t, 1, f.value(t, 1))
	assert.Equal(t, 0, f.value(t, 2))
	assert.Equal(t, 0.0, f.cost(t))

	// C had no idle neighbour left and escalated its bound to the domain size.
	assert.Equal(t, 3, f.solvers[2].Bound())
	assert.Equal(t, 2, f.solvers[0].Bound())
}

func TestCoop_RunnerConverges(t *testing.T) {
	ids := []dcop.ID{"A", "B", "C", "D", "E"}
	edges := [][2]dcop.ID{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}}
	f := newFixture(t, ids, edges, true)

	f.drive(t, 10)

	for _, a := range f.agents {
		assert.True(t, a.Finished())
	}
	assert.Equal(t, 0.0, f.cost(t))
	assert.Positive(t, f.dir.SentCounts()[TypeInquiry])
}

func TestCoop_TickIsNoop(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, [][2]dcop.ID{{"A", "B"}}, false)
	require.NoError(t, f.agents[0].Tick(context.Background()))
	assert.Equal(t, StatusIdle, f.solvers[0].Status())
	assert.False(t, f.agents[0].Variable().IsSet())
}

func TestCoop_DoneAgentReannouncesOnActivate(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, [][2]dcop.ID{{"A", "B"}}, false)
	f.dir.Send("A", StartMessage())
	require.True(t, f.solvers[0].Finished())
	require.True(t, f.solvers[1].Finished())

	before := f.dir.SentCounts()[TypeAssigned]
	f.dir.Send("A", message.New(TypeActivate, "B", 0))
	assert.Equal(t, before+1, f.dir.SentCounts()[TypeAssigned])
}

func TestCoop_IgnoresForeignReplies(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, [][2]dcop.ID{{"A", "B"}}, false)
	s := f.solvers[0]

	s.Push(message.New(TypeCost, "B", 7, message.WithTable("costs", dcop.CostTable{0: 0})))
	s.Push(message.New(TypeAssigned, "B", 0))
	s.Push(message.New(TypeInquiry, "B", 1))
	s.Push(message.New("bogus", "B", 0))
	assert.Equal(t, StatusIdle, s.Status())
	assert.Zero(t, s.Round())
}

func TestCoop_ResetReturnsToIdle(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, [][2]dcop.ID{{"A", "B"}}, false)
	f.dir.Send("A", StartMessage())
	require.True(t, f.solvers[0].Finished())

	f.dir.Reset()

	for i, s := range f.solvers {
		assert.Equal(t, StatusIdle, s.Status())
		assert.Equal(t, solver.PhaseUninitialized, s.Phase())
		assert.Equal(t, DefaultBound, s.Bound())
		assert.False(t, f.agents[i].Variable().IsSet())
	}
}

func TestCoop_ResetAgentIgnoresStrayTraffic(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B"}, [][2]dcop.ID{{"A", "B"}}, false)
	a, s := f.agents[0], f.solvers[0]
	a.Reset()
	require.Equal(t, solver.PhaseUninitialized, s.Phase())

	// B has not been reset yet and its traffic still reaches A.
	f.dir.Send("A", message.New(TypeActivate, "B", 0))
	f.dir.Send("A", StartMessage())
	f.dir.Send("A", message.New(TypeAssigned, "B", 0, message.Int("value", 1)))
	f.dir.Send("A", message.New(TypeCost, "B", 1, message.WithTable("costs", dcop.CostTable{0: 0, 1: 0, 2: 0})))

	assert.Equal(t, solver.PhaseUninitialized, s.Phase())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Zero(t, s.Round())
	assert.False(t, a.Variable().IsSet())
	assert.Zero(t, f.dir.SentCounts()[TypeInquiry], "a reset agent sends nothing")

	// A fresh Init brings it back into play.
	require.NoError(t, a.Init(context.Background()))
	f.dir.Send("A", StartMessage())
	assert.True(t, s.Finished())
	assert.True(t, f.solvers[1].Finished())
	assert.Equal(t, 0.0, f.cost(t))
}

func TestCoop_ReactivatesFromHoldThroughReady(t *testing.T) {
	f := newFixture(t, []dcop.ID{"A", "B", "C"}, [][2]dcop.ID{{"A", "B"}, {"B", "C"}, {"A", "C"}}, false)
	f.drive(t, 20)

	for i, s := range f.solvers {
		assert.True(t, s.Finished(), "agent %d", i)
		assert.Equal(t, solver.PhaseTerminated, s.Phase())
	}
	assert.Equal(t, 0.0, f.cost(t))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "IDLE", StatusIdle.String())
	assert.Equal(t, "HOLD", StatusHold.String())
	assert.Equal(t, "UNKNOWN", Status(9).String())
}
