// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package maxsum implements min-sum belief propagation over the pairwise
// constraint graph.
//
// Each round agent i sends every neighbour j a cost table over j's domain:
//
//	m(i→j)(xj) = min over xi of [ c(xi, xj) + u(xi) + Σ(k≠j) m(k→i)(xi) ]
//
// where u is a small random unary cost that breaks the symmetry of
// otherwise identical beliefs. Once every neighbour's table for the round
// is in, the agent takes the value minimising the sum of what it received.
package maxsum

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/constraint"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
)

// Message types.
const (
	TypeDomain = "maxsum.domain"
	TypeTable  = "maxsum.table"
)

const (
	// DefaultStableRounds is how many consecutive rounds the chosen value must
	// hold before the solver reports Finished.
	DefaultStableRounds = 3

	// DefaultNoise bounds the random unary preference per value.
	DefaultNoise = 1e-3
)

// Option configures a Solver.
type Option func(*Solver)

// WithSeed seeds the initial value and the unary noise.
func WithSeed(seed int64) Option {
	return func(s *Solver) { s.seed = seed }
}

// WithStableRounds overrides DefaultStableRounds.
func WithStableRounds(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.stableRounds = n
		}
	}
}

// WithDamping mixes each outgoing table with the previous one:
// out = d·previous + (1−d)·fresh. d must be in [0, 1).
func WithDamping(d float64) Option {
	return func(s *Solver) {
		if d >= 0 && d < 1 {
			s.damping = d
		}
	}
}

// WithNoise overrides DefaultNoise. Zero disables symmetry breaking.
func WithNoise(eps float64) Option {
	return func(s *Solver) {
		if eps >= 0 {
			s.noise = eps
		}
	}
}

// Solver is one agent's min-sum logic.
//
// Thread Safety: Init, Push, Tick and Reset must be serialized by the
// caller. Finished, Round and Phase may be called from any goroutine.
type Solver struct {
	host         solver.Host
	logger       *slog.Logger
	seed         int64
	stableRounds int
	damping      float64
	noise        float64

	phase    solver.PhaseState
	round    atomic.Int64
	finished atomic.Bool

	// peers are the neighbours sharing at least one binary constraint.
	peers   []dcop.ID
	edges   map[dcop.ID][]constraint.Constraint
	domains map[dcop.ID][]int
	unary   dcop.CostTable

	incoming *solver.RoundBuffer[dcop.CostTable]
	previous map[dcop.ID]dcop.CostTable
	sent     map[dcop.ID]dcop.CostTable

	lastValue int
	stable    int
}

// New creates a max-sum solver for host.
func New(host solver.Host, opts ...Option) *Solver {
	s := &Solver{
		host:         host,
		logger:       host.Logger().With(slog.String("protocol", "maxsum")),
		stableRounds: DefaultStableRounds,
		noise:        DefaultNoise,
		incoming:     solver.NewRoundBuffer[dcop.CostTable](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.indexEdges()
	return s
}

// indexEdges groups binary constraints by neighbour. Constraints over more
// than two variables are skipped.
func (s *Solver) indexEdges() {
	s.edges = make(map[dcop.ID][]constraint.Constraint)
	self := s.host.ID()
	for _, c := range s.host.Constraints() {
		if !constraint.Binary(c) {
			s.logger.Warn("ignoring non-binary constraint",
				slog.String("constraint", c.Name()),
				slog.Int("arity", len(c.Involved())))
			continue
		}
		for _, other := range constraint.Others(c, self) {
			s.edges[other] = append(s.edges[other], c)
		}
	}
	s.peers = s.peers[:0]
	for _, n := range s.host.Neighbours() {
		if _, ok := s.edges[n]; ok {
			s.peers = append(s.peers, n)
		}
	}
}

// Round returns the last round started.
func (s *Solver) Round() int { return int(s.round.Load()) }

// Phase returns the current phase.
func (s *Solver) Phase() solver.Phase { return s.phase.Get() }

// Finished reports whether the chosen value has been stable long enough.
func (s *Solver) Finished() bool { return s.finished.Load() }

// Init draws a random value and noise, announces the domain to every peer
// and moves to READY.
func (s *Solver) Init(_ context.Context) error {
	if s.phase.Get() != solver.PhaseUninitialized {
		s.Reset()
	}
	v := s.host.Variable()
	if v == nil {
		return s.phase.To(solver.PhaseReady)
	}

	rng := rand.New(rand.NewSource(s.seed))
	s.unary = dcop.NewCostTable(v.Domain())
	for _, x := range v.Domain() {
		s.unary[x] = rng.Float64() * s.noise
	}
	initial := v.RandomValue(rng)
	if err := v.Set(initial); err != nil {
		return err
	}
	s.lastValue = initial

	if err := s.phase.To(solver.PhaseReady); err != nil {
		return err
	}
	announce := message.New(TypeDomain, s.host.ID(), 0, message.WithTable("domain", dcop.NewCostTable(v.Domain())))
	for _, p := range s.peers {
		s.host.Send(p, announce)
	}
	return nil
}

// Reset clears beliefs, learned domains and the variable.
func (s *Solver) Reset() {
	s.phase.Reset()
	s.round.Store(0)
	s.finished.Store(false)
	s.domains = nil
	s.unary = nil
	s.incoming.Clear()
	s.previous = nil
	s.sent = nil
	s.lastValue, s.stable = 0, 0
	if v := s.host.Variable(); v != nil {
		v.Clear()
	}
}

// Tick sends the round's table to every peer whose domain is known.
func (s *Solver) Tick(_ context.Context) error {
	if p := s.phase.Get(); p != solver.PhaseReady {
		s.logger.Debug("tick ignored, round in progress",
			slog.Int("round", s.Round()), slog.String("phase", p.String()))
		return nil
	}
	if s.host.Variable() == nil {
		return nil
	}

	round := int(s.round.Add(1))
	s.incoming.DropBefore(round)
	if err := s.phase.To(solver.PhaseAwaitingPeerData); err != nil {
		return err
	}

	if s.sent == nil {
		s.sent = make(map[dcop.ID]dcop.CostTable)
	}
	for _, p := range s.peers {
		dom, ok := s.domains[p]
		if !ok {
			s.logger.Debug("peer domain unknown, skipping table",
				slog.String("peer", p.String()), slog.Int("round", round))
			continue
		}
		out := s.outgoing(p, dom)
		s.sent[p] = out
		s.host.Send(p, message.New(TypeTable, s.host.ID(), round, message.WithTable("table", out)))
	}
	s.tryBelief()
	return nil
}

// outgoing computes m(self→to) over to's domain.
func (s *Solver) outgoing(to dcop.ID, dom []int) dcop.CostTable {
	self := s.host.ID()
	own := s.host.Variable().Domain()

	// Unary noise plus every other peer's last message, summed in peer
	// order so the float result does not depend on map iteration.
	base := s.unary.Clone()
	for _, k := range s.peers {
		if m, ok := s.previous[k]; ok && k != to {
			base.Add(m)
		}
	}

	out := make(dcop.CostTable, len(dom))
	for _, xj := range dom {
		best := math.Inf(1)
		for _, xi := range own {
			cost := base[xi]
			asg := dcop.Assignment{self: xi, to: xj}
			for _, c := range s.edges[to] {
				cc, err := c.Cost(asg)
				if err != nil {
					s.logger.Warn("edge cost unavailable",
						slog.String("constraint", c.Name()), slog.String("error", err.Error()))
					continue
				}
				cost += cc
			}
			if cost < best {
				best = cost
			}
		}
		out[xj] = best
	}
	out.Normalize()

	if prev, ok := s.sent[to]; ok && s.damping > 0 {
		for x := range out {
			out[x] = s.damping*prev[x] + (1-s.damping)*out[x]
		}
	}
	return out
}

// Push records a domain announcement or a round table.
func (s *Solver) Push(msg *message.Message) {
	switch msg.Type() {
	case TypeDomain:
		dom, ok := msg.Table("domain")
		if !ok {
			s.discard(msg, "missing domain")
			return
		}
		if s.domains == nil {
			s.domains = make(map[dcop.ID][]int)
		}
		s.domains[msg.Source()] = dom.Values()
	case TypeTable:
		round := s.Round()
		rel := solver.Classify(round, msg.Round())
		if rel == solver.RoundStale {
			s.discard(msg, "stale round")
			return
		}
		table, ok := msg.Table("table")
		if !ok {
			s.discard(msg, "missing table")
			return
		}
		s.incoming.For(msg.Round()).Put(msg.Source(), table)
		if rel == solver.RoundCurrent {
			s.tryBelief()
		}
	default:
		s.discard(msg, "unexpected type")
	}
}

// tryBelief picks the value once every peer's table is in.
func (s *Solver) tryBelief() {
	if s.phase.Get() != solver.PhaseAwaitingPeerData {
		return
	}
	acc := s.incoming.For(s.Round())
	if !acc.Fire(s.peers) {
		return
	}
	s.previous = acc.Entries(s.peers)
	if err := s.phase.To(solver.PhaseAwaitingDerivedResult); err != nil {
		s.logger.Error("phase transition failed", slog.String("error", err.Error()))
		return
	}

	belief := s.unary.Clone()
	for _, k := range s.peers {
		if m, ok := s.previous[k]; ok {
			belief.Add(m)
		}
	}
	value, ok := belief.ArgMin()
	if ok {
		if err := s.host.Variable().Set(value); err != nil {
			s.logger.Error("commit failed", slog.String("error", err.Error()))
		}
		if value == s.lastValue {
			s.stable++
		} else {
			s.lastValue, s.stable = value, 1
		}
		s.finished.Store(s.stable >= s.stableRounds)
	}

	if err := s.phase.To(solver.PhaseCommitted); err != nil {
		s.logger.Error("phase transition failed", slog.String("error", err.Error()))
		return
	}
	_ = s.phase.To(solver.PhaseReady)
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
