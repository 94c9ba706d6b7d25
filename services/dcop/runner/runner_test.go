// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
)

// countingSolver detects overlapping calls and applies a non-atomic
// read-modify-write that would lose updates if calls interleaved.
type countingSolver struct {
	inflight atomic.Int32
	overlaps atomic.Int32
	count    int
	ticks    int
	inits    int
	resets   int
	order    []int
	panicOn  string
	finished atomic.Bool
}

func (s *countingSolver) enter() func() {
	if s.inflight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	return func() { s.inflight.Add(-1) }
}

func (s *countingSolver) Init(context.Context) error {
	defer s.enter()()
	s.inits++
	return nil
}

func (s *countingSolver) Push(msg *message.Message) {
	defer s.enter()()
	if msg.Type() == s.panicOn {
		panic("boom")
	}
	c := s.count
	runtime.Gosched()
	s.count = c + 1
	if v, ok := msg.Int("seq"); ok {
		s.order = append(s.order, v)
	}
}

func (s *countingSolver) Tick(context.Context) error {
	defer s.enter()()
	if s.panicOn == "tick" {
		panic("tick boom")
	}
	s.ticks++
	return nil
}

func (s *countingSolver) Reset() {
	defer s.enter()()
	s.resets++
	s.count = 0
	s.order = nil
}

func (s *countingSolver) Finished() bool { return s.finished.Load() }

func waitIdle(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.WaitIdle(ctx))
}

func TestRunner_SerializesConcurrentPushes(t *testing.T) {
	s := &countingSolver{}
	r := New("a", s)
	require.NoError(t, r.Init(context.Background()))
	defer r.Stop()

	const senders, each = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				r.Push(message.New("inc", "src", 0))
				if j%50 == 0 {
					_ = r.Tick(context.Background())
				}
			}
		}()
	}
	wg.Wait()
	waitIdle(t, r.Tracker())

	assert.Zero(t, s.overlaps.Load(), "solver calls overlapped")
	assert.Equal(t, senders*each, s.count)
	assert.Equal(t, senders*4, s.ticks)
}

func TestRunner_FIFO(t *testing.T) {
	s := &countingSolver{}
	r := New("a", s)
	require.NoError(t, r.Init(context.Background()))
	defer r.Stop()

	for i := 0; i < 100; i++ {
		r.Push(message.New("seq", "src", 0, message.Int("seq", i)))
	}
	waitIdle(t, r.Tracker())

	require.Len(t, s.order, 100)
	for i, v := range s.order {
		assert.Equal(t, i, v)
	}
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	s := &countingSolver{panicOn: "bad"}
	r := New("a", s)
	require.NoError(t, r.Init(context.Background()))
	defer r.Stop()

	r.Push(message.New("bad", "src", 0))
	r.Push(message.New("good", "src", 0))
	waitIdle(t, r.Tracker())

	assert.Equal(t, 1, s.count, "worker survives a panic")

	s.panicOn = "tick"
	err := r.Tick(context.Background())
	assert.ErrorIs(t, err, ErrSolverPanic)
}

func TestRunner_ResetDrainsAndKeepsWorker(t *testing.T) {
	s := &countingSolver{}
	r := New("a", s)
	require.NoError(t, r.Init(context.Background()))
	defer r.Stop()

	r.Reset()
	assert.Equal(t, 1, s.resets)
	assert.Zero(t, r.Len())
	assert.True(t, r.Running())
	assert.Zero(t, r.Tracker().Pending())

	r.Push(message.New("inc", "src", 0))
	waitIdle(t, r.Tracker())
	assert.Equal(t, 1, s.count)
}

func TestRunner_StopAndRestart(t *testing.T) {
	s := &countingSolver{}
	tr := NewTracker()
	r := New("a", s, WithTracker(tr))

	r.Push(message.New("inc", "src", 0))
	assert.Equal(t, int64(1), tr.Pending(), "push before init waits in the mailbox")

	require.NoError(t, r.Init(context.Background()))
	waitIdle(t, tr)
	assert.Equal(t, 1, s.count)

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
	assert.ErrorIs(t, r.Tick(context.Background()), ErrStopped)
	r.Push(message.New("inc", "src", 0))
	assert.Zero(t, tr.Pending(), "push after stop is discarded")

	require.NoError(t, r.Init(context.Background()))
	r.Push(message.New("inc", "src", 0))
	waitIdle(t, tr)
	assert.Equal(t, 2, s.count)
	assert.Equal(t, 2, s.inits)
	r.Stop()
}

func TestRunner_FinishedIsForwarded(t *testing.T) {
	s := &countingSolver{}
	r := New("a", s)
	assert.False(t, r.Finished())
	s.finished.Store(true)
	assert.True(t, r.Finished())
	assert.Same(t, s, r.Solver())
}

func TestTracker_WaitIdle(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.WaitIdle(context.Background()))

	tr.Add(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.WaitIdle(ctx), context.DeadlineExceeded)

	go func() {
		tr.Done()
		tr.Done()
	}()
	waitIdle(t, tr)
	assert.Zero(t, tr.Pending())

	tr.Add(-5)
	assert.Zero(t, tr.Pending(), "never negative")
}
