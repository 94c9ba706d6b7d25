// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent binds a variable, its constraints and a solver into one
// addressable participant.
//
// An Agent is the directory endpoint: inbound messages pass through its
// lossy-channel filter and then either into its runner mailbox or, in
// synchronous mode, straight into the solver on the sender's goroutine.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/constraint"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/runner"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/variable"
)

// Router is the outbound side of the directory.
type Router interface {
	Send(id dcop.ID, msg *message.Message)
	Broadcast(msg *message.Message)
}

// Option configures an Agent.
type Option func(*Agent) error

// WithRouter sets the directory used for outbound messages.
func WithRouter(r Router) Option {
	return func(a *Agent) error {
		a.router = r
		return nil
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithTracker shares a quiescence tracker with the runner created by
// SetSolver.
func WithTracker(t *runner.Tracker) Option {
	return func(a *Agent) error {
		a.tracker = t
		return nil
	}
}

// WithDeliveryProbability makes inbound delivery lossy. Each message is kept
// with probability p.
func WithDeliveryProbability(p float64) Option {
	return func(a *Agent) error {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
		}
		a.deliveryP = p
		return nil
	}
}

// WithSeed seeds the loss source so lossy runs are reproducible.
func WithSeed(seed int64) Option {
	return func(a *Agent) error {
		a.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// Agent owns one variable (or none, for relay agents) and the constraints
// over it.
//
// Thread Safety: safe for concurrent use. Deliver may be called from any
// goroutine; solver swaps are guarded by an RWMutex.
type Agent struct {
	id          dcop.ID
	variable    *variable.Variable
	constraints []constraint.Constraint
	neighbours  []dcop.ID

	router  Router
	logger  *slog.Logger
	tracker *runner.Tracker

	deliveryP float64
	rngMu     sync.Mutex
	rng       *rand.Rand
	lost      atomic.Int64

	mu     sync.RWMutex
	solver solver.Solver
	runner *runner.Runner
}

// New creates an agent.
//
// Description:
//
//	An agent owning a variable is addressed by the variable's ID; id may be
//	empty in that case. Every constraint must involve the owned variable.
//	Neighbours are the other variables of the constraints, deduplicated and
//	sorted.
//
// Inputs:
//
//	id - Agent identity. Required when v is nil.
//	v - Owned variable, or nil for a relay agent.
//	cs - Constraints the agent takes part in.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Agent - The agent, without a solver.
//	error - ErrIdentityMismatch, constraint.ErrNotInvolved or an option error.
func New(id dcop.ID, v *variable.Variable, cs []constraint.Constraint, opts ...Option) (*Agent, error) {
	if v != nil {
		if id != "" && id != v.ID() {
			return nil, fmt.Errorf("%w: %s != %s", ErrIdentityMismatch, id, v.ID())
		}
		id = v.ID()
	}
	if id == "" {
		id = dcop.NewID()
	}

	seen := make(map[dcop.ID]struct{})
	var neighbours []dcop.ID
	for _, c := range cs {
		if v != nil && !constraint.Involves(c, v.ID()) {
			return nil, fmt.Errorf("%s: %w: %s", c.Name(), constraint.ErrNotInvolved, v.ID())
		}
		for _, n := range constraint.Others(c, id) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				neighbours = append(neighbours, n)
			}
		}
	}

	a := &Agent{
		id:          id,
		variable:    v,
		constraints: append([]constraint.Constraint(nil), cs...),
		neighbours:  dcop.SortIDs(neighbours),
		logger:      slog.Default(),
		deliveryP:   1,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	a.logger = a.logger.With(slog.String("agent", id.String()))
	return a, nil
}

// ID returns the agent identity.
func (a *Agent) ID() dcop.ID { return a.id }

// Variable returns the owned variable, or nil.
func (a *Agent) Variable() *variable.Variable { return a.variable }

// Constraints returns a copy of the agent's constraints.
func (a *Agent) Constraints() []constraint.Constraint {
	return append([]constraint.Constraint(nil), a.constraints...)
}

// Neighbours returns the neighbour identities, sorted.
func (a *Agent) Neighbours() []dcop.ID {
	return append([]dcop.ID(nil), a.neighbours...)
}

// Logger returns the agent-scoped logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

// Lost returns the number of inbound messages dropped by the lossy channel.
func (a *Agent) Lost() int64 { return a.lost.Load() }

// -----------------------------------------------------------------------------
// Local cost queries
// -----------------------------------------------------------------------------

// LocalCost sums the agent's constraint costs over asg.
func (a *Agent) LocalCost(asg dcop.Assignment) (float64, error) {
	var total float64
	for _, c := range a.constraints {
		cost, err := c.Cost(asg)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// LocalCostIf sums the constraint costs with the owned variable set to
// value. Relay agents have no variable and always fail.
func (a *Agent) LocalCostIf(asg dcop.Assignment, value int) (float64, error) {
	if a.variable == nil {
		return 0, fmt.Errorf("%s: %w", a.id, constraint.ErrNotInvolved)
	}
	var total float64
	for _, c := range a.constraints {
		cost, err := c.CostIf(asg, a.variable.ID(), value)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// KnownCostIf is LocalCostIf over the constraints whose other variables are
// all present in asg. Constraints with unknown participants contribute
// nothing.
func (a *Agent) KnownCostIf(asg dcop.Assignment, value int) float64 {
	if a.variable == nil {
		return 0
	}
	var total float64
	for _, c := range a.constraints {
		cost, err := c.CostIf(asg, a.variable.ID(), value)
		if err != nil {
			continue
		}
		total += cost
	}
	return total
}

// -----------------------------------------------------------------------------
// Messaging
// -----------------------------------------------------------------------------

// Send routes msg to one agent.
func (a *Agent) Send(to dcop.ID, msg *message.Message) {
	if a.router == nil {
		a.logger.Debug("no router, dropping outbound message",
			slog.String("to", to.String()), slog.String("type", msg.Type()))
		return
	}
	a.router.Send(to, msg)
}

// SendNeighbours sends msg to every neighbour.
func (a *Agent) SendNeighbours(msg *message.Message) {
	for _, n := range a.neighbours {
		a.Send(n, msg)
	}
}

// Broadcast sends msg to every registered agent.
func (a *Agent) Broadcast(msg *message.Message) {
	if a.router == nil {
		return
	}
	a.router.Broadcast(msg)
}

// Deliver implements directory.Endpoint.
//
// The message is first subjected to the lossy channel. Survivors go to the
// runner mailbox, or straight into the solver in synchronous mode.
func (a *Agent) Deliver(msg *message.Message) {
	if a.dropOnChannel() {
		a.lost.Add(1)
		a.logger.Debug("message lost on channel",
			slog.String("type", msg.Type()),
			slog.String("from", msg.Source().String()),
			slog.Int("round", msg.Round()))
		return
	}

	a.mu.RLock()
	s, r := a.solver, a.runner
	a.mu.RUnlock()

	switch {
	case r != nil:
		r.Push(msg)
	case s != nil:
		s.Push(msg)
	default:
		a.logger.Debug("no solver, discarding message", slog.String("type", msg.Type()))
	}
}

func (a *Agent) dropOnChannel() bool {
	if a.deliveryP >= 1 {
		return false
	}
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.rng.Float64() >= a.deliveryP
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// SetSolver attaches s. With useRunner the solver is wrapped in a runner
// sharing the agent's tracker; otherwise it runs synchronously. A previous
// runner is stopped.
func (a *Agent) SetSolver(s solver.Solver, useRunner bool) {
	var r *runner.Runner
	if useRunner {
		r = runner.New(a.id, s, runner.WithLogger(a.logger), runner.WithTracker(a.tracker))
	}

	a.mu.Lock()
	old := a.runner
	a.solver, a.runner = s, r
	a.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// Solver returns the attached solver.
func (a *Agent) Solver() solver.Solver {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.solver
}

// Runner returns the runner, or nil in synchronous mode.
func (a *Agent) Runner() *runner.Runner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner
}

// Init initializes the solver (starting the runner worker if any).
func (a *Agent) Init(ctx context.Context) error {
	a.mu.RLock()
	s, r := a.solver, a.runner
	a.mu.RUnlock()

	switch {
	case r != nil:
		return r.Init(ctx)
	case s != nil:
		return s.Init(ctx)
	default:
		return fmt.Errorf("%s: %w", a.id, ErrNoSolver)
	}
}

// Tick starts a round.
func (a *Agent) Tick(ctx context.Context) error {
	a.mu.RLock()
	s, r := a.solver, a.runner
	a.mu.RUnlock()

	switch {
	case r != nil:
		return r.Tick(ctx)
	case s != nil:
		return s.Tick(ctx)
	default:
		return fmt.Errorf("%s: %w", a.id, ErrNoSolver)
	}
}

// Finished reports whether the solver has converged. An agent without a
// solver is never finished.
func (a *Agent) Finished() bool {
	s := a.Solver()
	return s != nil && s.Finished()
}

// Reset implements directory.Endpoint: the solver is reset and the
// variable cleared.
func (a *Agent) Reset() {
	a.mu.RLock()
	s, r := a.solver, a.runner
	a.mu.RUnlock()

	switch {
	case r != nil:
		r.Reset()
	case s != nil:
		s.Reset()
	}
	if a.variable != nil {
		a.variable.Clear()
	}
}

// Stop stops the runner, if any.
func (a *Agent) Stop() {
	if r := a.Runner(); r != nil {
		r.Stop()
	}
}

// Compile-time interface check.
var _ solver.Host = (*Agent)(nil)
