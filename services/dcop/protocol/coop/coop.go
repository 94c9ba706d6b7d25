// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coop implements a reactive cooperative assignment protocol.
//
// Agents start IDLE. An activated agent asks every neighbour what each of
// its own values would cost them, sums the answers with its own known
// costs, and commits if few enough values are jointly optimal. Otherwise it
// holds, raises its uniqueness bound, and hands activation to an idle
// neighbour whose commitment may break the tie. Committed agents pass
// activation along one idle neighbour at a time until none remain.
//
// Nothing here is driven by Tick; transitions happen on message receipt.
package coop

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
)

// Message types.
const (
	TypeStart    = "coop.start"
	TypeInquiry  = "coop.inquiry"
	TypeCost     = "coop.cost"
	TypeAssigned = "coop.assigned"
	TypeActivate = "coop.activate"
)

// Status is the cooperative state of an agent.
type Status int

const (
	// StatusIdle has not been activated.
	StatusIdle Status = iota
	// StatusActive is collecting cost replies.
	StatusActive
	// StatusHold found too many optimal values and waits for a neighbour
	// to commit.
	StatusHold
	// StatusDone has committed its value.
	StatusDone
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusActive:
		return "ACTIVE"
	case StatusHold:
		return "HOLD"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// DefaultBound is the initial uniqueness bound.
const DefaultBound = 1

// Option configures a Solver.
type Option func(*Solver)

// WithBound overrides DefaultBound.
func WithBound(b int) Option {
	return func(s *Solver) {
		if b > 0 {
			s.initialBound = b
		}
	}
}

// StartMessage builds the message a driver sends to kick off an agent.
func StartMessage() *message.Message {
	return message.New(TypeStart, "", 0)
}

// Solver is one agent's cooperative logic.
//
// Thread Safety: Init, Push, Tick and Reset must be serialized by the
// caller. Finished, Status, Round and Phase may be called from any
// goroutine.
type Solver struct {
	host         solver.Host
	logger       *slog.Logger
	initialBound int

	status atomic.Int32
	round  atomic.Int64
	phase  solver.PhaseState

	bound     int
	assigned  dcop.Assignment
	known     map[dcop.ID]Status
	replies   *solver.RoundBuffer[dcop.CostTable]
	activated dcop.ID
}

// New creates a cooperative solver for host.
func New(host solver.Host, opts ...Option) *Solver {
	s := &Solver{
		host:         host,
		logger:       host.Logger().With(slog.String("protocol", "coop")),
		initialBound: DefaultBound,
		replies:      solver.NewRoundBuffer[dcop.CostTable](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clear()
	return s
}

func (s *Solver) clear() {
	s.status.Store(int32(StatusIdle))
	s.round.Store(0)
	s.bound = s.initialBound
	s.assigned = dcop.Assignment{}
	s.known = make(map[dcop.ID]Status)
	s.replies.Clear()
	s.activated = ""
}

// Status returns the cooperative status.
func (s *Solver) Status() Status { return Status(s.status.Load()) }

// Round returns the number of inquiries issued.
func (s *Solver) Round() int { return int(s.round.Load()) }

// Phase returns the round phase.
func (s *Solver) Phase() solver.Phase { return s.phase.Get() }

// Bound returns the current uniqueness bound.
func (s *Solver) Bound() int { return s.bound }

// Finished reports whether the agent is DONE.
func (s *Solver) Finished() bool { return s.Status() == StatusDone }

// Init resets to IDLE and moves to READY. The variable stays unset until
// the agent commits.
func (s *Solver) Init(_ context.Context) error {
	if s.phase.Get() != solver.PhaseUninitialized {
		s.Reset()
	}
	s.clear()
	if v := s.host.Variable(); v != nil {
		v.Clear()
	}
	return s.phase.To(solver.PhaseReady)
}

// Reset returns to UNINITIALIZED and clears the variable.
func (s *Solver) Reset() {
	s.phase.Reset()
	s.clear()
	if v := s.host.Variable(); v != nil {
		v.Clear()
	}
}

// Tick is a no-op; the protocol is reactive.
func (s *Solver) Tick(_ context.Context) error { return nil }

// Push drives every transition. Messages arriving before Init or after
// Reset are discarded.
func (s *Solver) Push(msg *message.Message) {
	if s.phase.Get() == solver.PhaseUninitialized {
		s.discard(msg, "solver not initialized")
		return
	}
	switch msg.Type() {
	case TypeStart:
		// A start also nudges a holding agent to retry with its raised
		// bound, which is how a driver breaks a ring of mutual holds.
		if st := s.Status(); st == StatusIdle || st == StatusHold {
			s.activate()
		}
	case TypeActivate:
		s.onActivate(msg)
	case TypeInquiry:
		s.onInquiry(msg)
	case TypeCost:
		s.onCost(msg)
	case TypeAssigned:
		s.onAssigned(msg)
	default:
		s.discard(msg, "unexpected type")
	}
}

// activate enters ACTIVE and asks every neighbour for its costs.
func (s *Solver) activate() {
	v := s.host.Variable()
	if v == nil {
		return
	}
	// Each inquiry is a fresh round of the phase machine, entered from READY.
	if err := s.phase.To(solver.PhaseAwaitingPeerData); err != nil {
		s.logger.Debug("activation ignored", slog.String("error", err.Error()))
		return
	}
	s.status.Store(int32(StatusActive))
	round := int(s.round.Add(1))
	s.replies.DropBefore(round)

	s.host.SendNeighbours(message.New(TypeInquiry, s.host.ID(), round,
		message.WithTable("domain", dcop.NewCostTable(v.Domain())),
		message.Int("status", int(StatusActive))))
	s.tryDecide()
}

func (s *Solver) onActivate(msg *message.Message) {
	switch s.Status() {
	case StatusIdle:
		s.activate()
	case StatusDone:
		// The sender missed or raced our announcement; repeat it so its
		// outstanding activation is released.
		if value, err := s.host.Variable().Value(); err == nil {
			s.host.Send(msg.Source(), message.New(TypeAssigned, s.host.ID(), 0, message.Int("value", value)))
		}
	}
}

// onInquiry answers with, for each inquirer value, the cheapest cost this
// agent could achieve against it given the neighbours already committed.
func (s *Solver) onInquiry(msg *message.Message) {
	v := s.host.Variable()
	dom, ok := msg.Table("domain")
	if !ok || v == nil {
		s.discard(msg, "missing domain")
		return
	}
	if st, ok := msg.Int("status"); ok {
		s.noteStatus(msg.Source(), Status(st))
	}

	candidates := v.Domain()
	if s.Status() == StatusDone {
		if value, err := v.Value(); err == nil {
			candidates = []int{value}
		}
	}

	src := msg.Source()
	table := make(dcop.CostTable, len(dom))
	for _, xq := range dom.Values() {
		ctx := s.assigned.With(src, xq)
		best := math.Inf(1)
		for _, xs := range candidates {
			if cost := s.host.KnownCostIf(ctx, xs); cost < best {
				best = cost
			}
		}
		table[xq] = best
	}

	s.host.Send(src, message.New(TypeCost, s.host.ID(), msg.Round(),
		message.WithTable("costs", table),
		message.Int("status", int(s.Status()))))
}

func (s *Solver) onCost(msg *message.Message) {
	if st, ok := msg.Int("status"); ok {
		s.noteStatus(msg.Source(), Status(st))
	}
	if s.Status() != StatusActive || msg.Round() != s.Round() {
		s.discard(msg, "reply outside current inquiry")
		return
	}
	table, ok := msg.Table("costs")
	if !ok {
		s.discard(msg, "missing costs")
		return
	}
	s.replies.For(msg.Round()).Put(msg.Source(), table)
	s.tryDecide()
}

func (s *Solver) onAssigned(msg *message.Message) {
	value, ok := msg.Int("value")
	if !ok {
		s.discard(msg, "missing value")
		return
	}
	src := msg.Source()
	s.assigned[src] = value
	s.known[src] = StatusDone
	released := src == s.activated
	if released {
		s.activated = ""
	}

	switch s.Status() {
	case StatusHold:
		s.activate()
	case StatusDone:
		if released {
			s.activateNext()
		}
	}
}

// tryDecide commits or holds once every neighbour has replied.
func (s *Solver) tryDecide() {
	if s.Status() != StatusActive || s.phase.Get() != solver.PhaseAwaitingPeerData {
		return
	}
	neighbours := s.host.Neighbours()
	acc := s.replies.For(s.Round())
	if !acc.Fire(neighbours) {
		return
	}
	_ = s.phase.To(solver.PhaseAwaitingDerivedResult)

	v := s.host.Variable()
	total := dcop.NewCostTable(v.Domain())
	for _, x := range v.Domain() {
		total[x] = s.host.KnownCostIf(s.assigned, x)
	}
	for _, n := range neighbours {
		if t, ok := acc.Get(n); ok {
			total.Add(t)
		}
	}

	optimal := total.Optimal()
	if len(optimal) <= s.bound {
		s.commit(optimal[0])
		return
	}

	s.status.Store(int32(StatusHold))
	s.bound++
	_ = s.phase.To(solver.PhaseCommitted)
	_ = s.phase.To(solver.PhaseReady)
	s.logger.Debug("holding, too many optimal values",
		slog.Int("optimal", len(optimal)), slog.Int("bound", s.bound))

	if s.activated != "" {
		return
	}
	if next, ok := s.nextIdle(); ok {
		s.sendActivate(next)
		return
	}
	s.activate()
}

func (s *Solver) commit(value int) {
	if err := s.host.Variable().Set(value); err != nil {
		s.logger.Error("commit failed", slog.String("error", err.Error()))
		return
	}
	s.status.Store(int32(StatusDone))
	_ = s.phase.To(solver.PhaseCommitted)
	_ = s.phase.To(solver.PhaseTerminated)
	s.logger.Debug("committed", slog.Int("value", value), slog.Int("bound", s.bound))

	s.host.SendNeighbours(message.New(TypeAssigned, s.host.ID(), 0, message.Int("value", value)))
	s.activateNext()
}

// activateNext passes activation to the lowest idle neighbour, keeping at
// most one activation outstanding.
func (s *Solver) activateNext() {
	if s.activated != "" {
		return
	}
	if next, ok := s.nextIdle(); ok {
		s.sendActivate(next)
	}
}

func (s *Solver) sendActivate(to dcop.ID) {
	s.activated = to
	s.known[to] = StatusActive
	s.host.Send(to, message.New(TypeActivate, s.host.ID(), 0))
}

func (s *Solver) nextIdle() (dcop.ID, bool) {
	for _, n := range s.host.Neighbours() {
		if s.known[n] == StatusIdle {
			return n, true
		}
	}
	return "", false
}

// noteStatus records a neighbour's reported status. DONE is final.
func (s *Solver) noteStatus(id dcop.ID, st Status) {
	if s.known[id] == StatusDone {
		return
	}
	s.known[id] = st
}

func (s *Solver) discard(msg *message.Message, reason string) {
	s.logger.Debug("discarding message",
		slog.String("reason", reason),
		slog.String("type", msg.Type()),
		slog.String("from", msg.Source().String()),
		slog.Int("round", msg.Round()))
}

// Compile-time interface checks.
var (
	_ solver.Solver   = (*Solver)(nil)
	_ solver.Observer = (*Solver)(nil)
)
