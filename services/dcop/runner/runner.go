// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner turns a Solver into an actor with its own mailbox and
// worker goroutine.
//
// # Invariant
//
// At most one of Init, Push, Tick or Reset executes on the wrapped solver
// at any time. Solver authors write single-threaded code.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracker shares a quiescence tracker with other runners.
func WithTracker(t *Tracker) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracker = t
		}
	}
}

// Runner wraps a Solver with an unbounded FIFO mailbox and one worker.
//
// Description:
//
//	Push never blocks: it appends to the mailbox and signals the worker.
//	The worker pops messages in order and calls Solver.Push under the
//	execution lock that Init, Tick and Reset also take. The worker is
//	started by Init and stopped by Stop; a stopped runner can be started
//	again by a later Init.
//
// Thread Safety: safe for concurrent use.
type Runner struct {
	id      dcop.ID
	solver  solver.Solver
	tracker *Tracker
	logger  *slog.Logger
	attrs   metric.MeasurementOption

	// exec serializes every call into solver.
	exec sync.Mutex

	qmu     sync.Mutex
	queue   []*message.Message
	signal  chan struct{}
	running bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// New wraps s for the agent id.
func New(id dcop.ID, s solver.Solver, opts ...Option) *Runner {
	r := &Runner{
		id:      id,
		solver:  s,
		tracker: NewTracker(),
		logger:  slog.Default(),
		signal:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "runner"), slog.String("agent", id.String()))
	r.attrs = metric.WithAttributes(attribute.String("agent", id.String()))
	initMetrics(r.logger)
	return r
}

// Solver returns the wrapped solver.
func (r *Runner) Solver() solver.Solver { return r.solver }

// Tracker returns the quiescence tracker the runner reports to.
func (r *Runner) Tracker() *Tracker { return r.tracker }

// Push enqueues msg for the worker.
//
// Messages pushed before Init wait in the mailbox. Messages pushed after
// Stop are discarded; they would otherwise hold the tracker above zero
// forever.
func (r *Runner) Push(msg *message.Message) {
	r.qmu.Lock()
	if r.stopped {
		r.qmu.Unlock()
		r.logger.Debug("discarding message for stopped runner",
			slog.String("type", msg.Type()),
			slog.String("from", msg.Source().String()))
		return
	}
	r.tracker.Add(1)
	r.queue = append(r.queue, msg)
	depth := len(r.queue)
	r.qmu.Unlock()

	if queueDepth != nil {
		queueDepth.Record(context.Background(), int64(depth), r.attrs)
	}
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (r *Runner) Len() int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return len(r.queue)
}

// Init initializes the solver, then starts the worker if needed. Messages
// queued before Init are processed after the solver is initialized.
func (r *Runner) Init(ctx context.Context) error {
	err := r.call("init", func() error { return r.solver.Init(ctx) })
	r.start()
	return err
}

// Tick forwards a round tick to the solver.
func (r *Runner) Tick(ctx context.Context) error {
	r.qmu.Lock()
	stopped := r.stopped
	r.qmu.Unlock()
	if stopped {
		return ErrStopped
	}
	return r.call("tick", func() error { return r.solver.Tick(ctx) })
}

// Reset drops queued messages and resets the solver. The worker keeps
// running.
func (r *Runner) Reset() {
	r.drain()
	_ = r.call("reset", func() error {
		r.solver.Reset()
		return nil
	})
}

// Finished forwards to the solver without taking the execution lock.
func (r *Runner) Finished() bool { return r.solver.Finished() }

// Running reports whether the worker is active.
func (r *Runner) Running() bool {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return r.running
}

// Stop asks the worker to exit and waits for it. Queued messages are
// discarded. Safe to call more than once.
func (r *Runner) Stop() {
	r.qmu.Lock()
	if !r.running {
		r.qmu.Unlock()
		return
	}
	r.running = false
	r.stopped = true
	close(r.stop)
	done := r.done
	r.qmu.Unlock()

	<-done
	r.drain()
}

func (r *Runner) start() {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopped = false
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.work(r.stop, r.done)
}

func (r *Runner) work(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		msg, ok := r.pop()
		if !ok {
			select {
			case <-r.signal:
			case <-stop:
				return
			}
			continue
		}
		r.process(msg)
	}
}

func (r *Runner) pop() (*message.Message, bool) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	msg := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return msg, true
}

func (r *Runner) drain() {
	r.qmu.Lock()
	n := len(r.queue)
	r.queue = nil
	r.qmu.Unlock()
	if n > 0 {
		r.tracker.Add(-n)
	}
}

// process runs one message through the solver. The tracker is released
// last so that any message the solver sent is already counted.
func (r *Runner) process(msg *message.Message) {
	defer r.tracker.Done()

	start := time.Now()
	err := r.call("push", func() error {
		r.solver.Push(msg)
		return nil
	})
	ctx := context.Background()
	if processLatency != nil {
		processLatency.Record(ctx, time.Since(start).Seconds(), r.attrs)
	}
	if processedTotal != nil && err == nil {
		processedTotal.Add(ctx, 1, r.attrs)
	}
}

// call runs fn under the execution lock, converting a panic to an error.
func (r *Runner) call(op string, fn func() error) (err error) {
	r.exec.Lock()
	defer r.exec.Unlock()
	defer func() {
		if p := recover(); p != nil {
			if panicsTotal != nil {
				panicsTotal.Add(context.Background(), 1, r.attrs)
			}
			r.logger.Error("solver panic recovered",
				slog.String("op", op),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %s: %v", ErrSolverPanic, op, p)
		}
	}()
	return fn()
}
