// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mgm implements the maximum-gain-message local search.
//
// Each round every agent tells its neighbours its value, works out the best
// unilateral move it could make, tells its neighbours how much that move
// would gain, and moves only if its gain beats every neighbour's (ties go to
// the lowest identity). At most one agent per neighbourhood moves per round,
// so the global cost never increases.
package mgm

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
)

// Message types.
const (
	TypeValue = "mgm.value"
	TypeGain  = "mgm.gain"
)

// Option configures a Solver.
type Option func(*Solver)

// WithSeed seeds the random initial value.
func WithSeed(seed int64) Option {
	return func(s *Solver) { s.seed = seed }
}

// WithPresetValue keeps an already-set variable value at Init instead of
// drawing a random one.
func WithPresetValue() Option {
	return func(s *Solver) { s.keepPreset = true }
}

// Solver is one agent's MGM logic.
//
// Thread Safety: Init, Push, Tick and Reset must be serialized by the
// caller (the runner does this). Finished, Round, Phase and LastGain may
// be called from any goroutine.
type Solver struct {
	host       solver.Host
	logger     *slog.Logger
	seed       int64
	keepPreset bool
	rng        *rand.Rand

	phase solver.PhaseState
	round atomic.Int64

	values *solver.RoundBuffer[int]
	gains  *solver.RoundBuffer[float64]

	// Derived result of the current round.
	bestValue int
	gain      float64

	lastGain atomic.Uint64
	finished atomic.Bool
}

// New creates an MGM solver for host.
func New(host solver.Host, opts ...Option) *Solver {
	s := &Solver{
		host:   host,
		logger: host.Logger().With(slog.String("protocol", "mgm")),
		values: solver.NewRoundBuffer[int](),
		gains:  solver.NewRoundBuffer[float64](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Round returns the last round started.
func (s *Solver) Round() int { return int(s.round.Load()) }

// Phase returns the current phase.
func (s *Solver) Phase() solver.Phase { return s.phase.Get() }

// LastGain returns the gain computed in the last completed value gate.
func (s *Solver) LastGain() float64 { return math.Float64frombits(s.lastGain.Load()) }

// Finished reports whether the last completed round found no improving
// move for this agent or any neighbour.
func (s *Solver) Finished() bool { return s.finished.Load() }

// Init seeds the variable and moves to READY.
func (s *Solver) Init(_ context.Context) error {
	if s.phase.Get() != solver.PhaseUninitialized {
		s.Reset()
	}
	s.rng = rand.New(rand.NewSource(s.seed))

	v := s.host.Variable()
	if v != nil && !(s.keepPreset && v.IsSet()) {
		if err := v.Set(v.RandomValue(s.rng)); err != nil {
			return err
		}
	}
	return s.phase.To(solver.PhaseReady)
}

// Reset clears every round buffer and the variable.
func (s *Solver) Reset() {
	s.phase.Reset()
	s.round.Store(0)
	s.values.Clear()
	s.gains.Clear()
	s.bestValue, s.gain = 0, 0
	s.lastGain.Store(0)
	s.finished.Store(false)
	if v := s.host.Variable(); v != nil {
		v.Clear()
	}
}

// Tick starts the next round by sending the current value to every
// neighbour. A tick that arrives mid-round is ignored.
func (s *Solver) Tick(_ context.Context) error {
	if p := s.phase.Get(); p != solver.PhaseReady {
		s.logger.Debug("tick ignored, round in progress",
			slog.Int("round", s.Round()), slog.String("phase", p.String()))
		return nil
	}
	v := s.host.Variable()
	if v == nil {
		return nil
	}
	value, err := v.Value()
	if err != nil {
		return err
	}

	round := int(s.round.Add(1))
	s.values.DropBefore(round)
	s.gains.DropBefore(round)
	if err := s.phase.To(solver.PhaseAwaitingPeerData); err != nil {
		return err
	}

	s.host.SendNeighbours(message.New(TypeValue, s.host.ID(), round, message.Int("value", value)))
	s.tryValues()
	return nil
}

// Push records a neighbour's value or gain.
func (s *Solver) Push(msg *message.Message) {
	round := s.Round()
	rel := solver.Classify(round, msg.Round())
	if rel == solver.RoundStale {
		s.logger.Debug("discarding stale message",
			slog.String("type", msg.Type()),
			slog.String("from", msg.Source().String()),
			slog.Int("round", msg.Round()),
			slog.Int("current", round))
		return
	}

	switch msg.Type() {
	case TypeValue:
		v, ok := msg.Int("value")
		if !ok {
			s.discard(msg, "missing value")
			return
		}
		s.values.For(msg.Round()).Put(msg.Source(), v)
		if rel == solver.RoundCurrent {
			s.tryValues()
		}
	case TypeGain:
		g, ok := msg.Number("gain")
		if !ok {
			s.discard(msg, "missing gain")
			return
		}
		s.gains.For(msg.Round()).Put(msg.Source(), g)
		if rel == solver.RoundCurrent {
			s.tryGains()
		}
	default:
		s.discard(msg, "unexpected type")
	}
}

// tryValues computes the best move once every neighbour value is in.
func (s *Solver) tryValues() {
	if s.phase.Get() != solver.PhaseAwaitingPeerData {
		return
	}
	round := s.Round()
	neighbours := s.host.Neighbours()
	acc := s.values.For(round)
	if !acc.Fire(neighbours) {
		return
	}

	known := dcop.Assignment(acc.Entries(neighbours))
	s.bestValue, s.gain = s.bestMove(known)
	s.lastGain.Store(math.Float64bits(s.gain))

	if err := s.phase.To(solver.PhaseAwaitingDerivedResult); err != nil {
		s.logger.Error("phase transition failed", slog.String("error", err.Error()))
		return
	}
	s.host.SendNeighbours(message.New(TypeGain, s.host.ID(), round, message.Number("gain", s.gain)))
	s.tryGains()
}

// bestMove returns the cheapest value given the neighbour values and the
// improvement over the current value. Equal costs resolve to the lowest
// value.
func (s *Solver) bestMove(known dcop.Assignment) (int, float64) {
	v := s.host.Variable()
	current, err := v.Value()
	if err != nil {
		return 0, 0
	}
	currentCost, err := s.host.LocalCostIf(known, current)
	if err != nil {
		s.logger.Warn("local cost unavailable", slog.String("error", err.Error()))
		return current, 0
	}

	table := make(dcop.CostTable, v.Size())
	for _, candidate := range v.Domain() {
		cost, err := s.host.LocalCostIf(known, candidate)
		if err != nil {
			continue
		}
		table[candidate] = cost
	}
	best, ok := table.ArgMin()
	if !ok {
		return current, 0
	}
	return best, currentCost - table[best]
}

// tryGains applies the tie-break once every neighbour gain is in.
func (s *Solver) tryGains() {
	if s.phase.Get() != solver.PhaseAwaitingDerivedResult {
		return
	}
	round := s.Round()
	neighbours := s.host.Neighbours()
	acc := s.gains.For(round)
	if !acc.Fire(neighbours) {
		return
	}

	others := acc.Entries(neighbours)
	if solver.WinsTieBreak(s.host.ID(), s.gain, others) {
		if err := s.host.Variable().Set(s.bestValue); err != nil {
			s.logger.Error("commit failed", slog.String("error", err.Error()))
		} else {
			s.logger.Debug("committed move",
				slog.Int("round", round),
				slog.Int("value", s.bestValue),
				slog.Float64("gain", s.gain))
		}
	}

	stable := s.gain <= 0
	for _, g := range others {
		if g > 0 {
			stable = false
			break
		}
	}
	s.finished.Store(stable)

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
