// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package driver runs a simulation end to end.
//
// A Simulation turns a problem into one agent per variable, attaches the
// selected protocol, and drives rounds until every agent reports Finished,
// the round limit is reached, or a round fails to settle. Clock-driven
// protocols advance by ticking every agent; reactive ones by sending a
// start message to the lowest unfinished agent. Quiescence, not sleeping,
// marks the end of a round.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/agent"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/directory"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/events"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/history"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/problem"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/runner"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/telemetry"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/variable"
)

var (
	metricsOnce sync.Once
	simMetrics  *telemetry.Metrics
)

// metrics lazily creates the simulation instruments on the global meter.
func metrics(logger *slog.Logger) *telemetry.Metrics {
	metricsOnce.Do(func() {
		m, err := telemetry.NewMetrics(otel.Meter(telemetry.TracerName))
		if err != nil {
			logger.Warn("simulation metrics unavailable", slog.String("error", err.Error()))
			return
		}
		simMetrics = m
	})
	return simMetrics
}

// Simulation is one configured run over a problem.
//
// Thread Safety: Setup, Run and Close must not be called concurrently.
// TotalCost, Assignment and the accessors are safe from any goroutine.
type Simulation struct {
	problem *problem.Problem
	opts    Options
	desc    protocol.Descriptor
	logger  *slog.Logger
	emitter *events.Emitter
	history *history.Trajectory
	limiter *rate.Limiter
	runID   string

	dir     *directory.Directory
	tracker *runner.Tracker
	agents  []*agent.Agent

	round    int
	previous dcop.Assignment
	ready    bool
	closed   bool
}

// New validates the problem and options.
//
// Outputs:
//
//	*Simulation - Not yet set up.
//	error - ErrNoAgents or protocol.ErrUnknownKind.
func New(p *problem.Problem, opts Options) (*Simulation, error) {
	if p == nil || len(p.Variables) == 0 {
		return nil, ErrNoAgents
	}
	opts = opts.withDefaults()
	desc, err := opts.Registry.Lookup(opts.Protocol)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	opts.Emitter.SetRunID(runID)

	s := &Simulation{
		problem: p,
		opts:    opts,
		desc:    desc,
		logger: opts.Logger.With(
			slog.String("run_id", runID),
			slog.String("protocol", desc.Kind.String())),
		emitter: opts.Emitter,
		history: history.NewTrajectory(opts.HistorySize),
		runID:   runID,
	}
	if opts.RoundsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RoundsPerSecond), 1)
	}
	return s, nil
}

// RunID returns the run identity.
func (s *Simulation) RunID() string { return s.runID }

// Directory returns the directory, or nil before Setup.
func (s *Simulation) Directory() *directory.Directory { return s.dir }

// Agents returns the agents sorted by ID.
func (s *Simulation) Agents() []*agent.Agent { return append([]*agent.Agent(nil), s.agents...) }

// History returns the per-round trajectory.
func (s *Simulation) History() *history.Trajectory { return s.history }

// Emitter returns the event emitter.
func (s *Simulation) Emitter() *events.Emitter { return s.emitter }

// Setup builds agents, attaches solvers and initializes them.
//
// Description:
//
//	One agent per variable, addressed by the variable's ID, registered
//	with a fresh directory and sharing one quiescence tracker. Every agent
//	and solver gets a seed derived from Options.Seed and its position.
//	Setup returns once the messages sent during Init have settled.
//
// Outputs:
//
//	error - Agent construction or Init failure, or a stall while settling.
func (s *Simulation) Setup(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.ready {
		s.teardown()
	}

	s.dir = directory.New(directory.WithLogger(s.logger))
	s.tracker = runner.NewTracker()
	s.agents = s.agents[:0]
	s.round = 0
	s.previous = nil
	s.history.Reset()
	s.emitter.SetRound(0)

	vars := append(s.problem.Variables[:0:0], s.problem.Variables...)
	sortVariables(vars)

	for i, v := range vars {
		seed := s.opts.Seed + int64(i)
		a, err := agent.New("", v, s.problem.ConstraintsFor(v.ID()),
			agent.WithRouter(s.dir),
			agent.WithLogger(s.logger),
			agent.WithTracker(s.tracker),
			agent.WithSeed(seed),
			agent.WithDeliveryProbability(s.opts.DeliveryProbability),
		)
		if err != nil {
			s.teardown()
			return fmt.Errorf("create agent %s: %w", v.ID(), err)
		}
		po := s.opts.ProtocolOptions
		po.Seed = seed
		a.SetSolver(s.desc.New(a, po), s.opts.UseRunner)
		s.dir.Register(a.ID(), a)
		s.agents = append(s.agents, a)
	}

	for _, a := range s.agents {
		if err := a.Init(ctx); err != nil {
			s.teardown()
			return fmt.Errorf("init agent %s: %w", a.ID(), err)
		}
	}
	if err := s.settle(ctx); err != nil {
		s.teardown()
		return fmt.Errorf("settle after init: %w", err)
	}

	s.previous = s.Assignment()
	s.ready = true
	s.emitter.Emit(events.TypeRunStart, events.RunStartData{
		Problem:     s.problem.Name,
		Protocol:    s.desc.Kind.String(),
		Agents:      len(s.agents),
		Constraints: len(s.problem.Constraints),
		UseRunner:   s.opts.UseRunner,
	})
	s.logger.Info("simulation ready",
		slog.String("problem", s.problem.Name),
		slog.Int("agents", len(s.agents)),
		slog.Bool("use_runner", s.opts.UseRunner))
	return nil
}

// Run drives rounds until convergence, the round limit, a stall, or ctx
// cancellation.
//
// Outputs:
//
//	*Result - Always non-nil once Setup succeeded, even alongside an error.
//	error - ErrNotSetUp, ctx.Err(), or a solver Tick failure.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if !s.ready {
		return nil, ErrNotSetUp
	}

	ctx, span := telemetry.StartSpan(ctx, "Simulation.Run", trace.WithAttributes(
		attribute.String("run_id", s.runID),
		attribute.String("protocol", s.desc.Kind.String()),
		attribute.Int("agents", len(s.agents)),
	))
	defer span.End()

	res := &Result{
		RunID:    s.runID,
		Problem:  s.problem.Name,
		Protocol: s.desc.Kind,
		Agents:   len(s.agents),
		Started:  time.Now(),
	}

	var err error
	if s.desc.Reactive {
		err = s.runReactive(ctx, res)
	} else {
		err = s.runClocked(ctx, res)
	}

	s.finish(ctx, res, err)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanOK(span)
	}
	return res, err
}

func (s *Simulation) runClocked(ctx context.Context, res *Result) error {
	for s.round < s.opts.MaxRounds {
		if s.allFinished() {
			res.Converged = true
			return nil
		}
		if err := s.pace(ctx); err != nil {
			return err
		}

		reason, err := s.step(ctx, func(ctx context.Context) error { return s.tickAll(ctx) })
		if err != nil {
			return err
		}
		if reason == "" {
			reason = s.midRound()
		}
		if reason != "" {
			s.stall(ctx, res, reason)
			return nil
		}
	}
	res.Converged = s.allFinished()
	return nil
}

// runReactive tolerates a few starts that finish nobody, since each one
// still raises a holding agent's bound. Once the streak exceeds the largest
// domain no bound can rise further and the run is stalled.
func (s *Simulation) runReactive(ctx context.Context, res *Result) error {
	patience := s.maxDomain()
	idle := 0
	for s.round < s.opts.MaxRounds {
		target, ok := s.lowestUnfinished()
		if !ok {
			res.Converged = true
			return nil
		}
		if err := s.pace(ctx); err != nil {
			return err
		}

		before := s.finishedCount()
		reason, err := s.step(ctx, func(context.Context) error {
			s.dir.Send(target, s.desc.StartMessage())
			return nil
		})
		if err != nil {
			return err
		}
		if reason == "" {
			if s.finishedCount() > before {
				idle = 0
			} else if idle++; idle > patience {
				reason = StallNoProgress
			}
		}
		if reason != "" {
			s.stall(ctx, res, reason)
			return nil
		}
	}
	res.Converged = s.allFinished()
	return nil
}

// step runs one round: kick, settle, record. It returns a stall reason when
// quiescence was not reached in time.
func (s *Simulation) step(ctx context.Context, kick func(context.Context) error) (string, error) {
	s.round++
	s.emitter.SetRound(s.round)
	ctx, span := telemetry.StartSpan(ctx, "Simulation.Round",
		trace.WithAttributes(attribute.Int("round", s.round)))
	defer span.End()

	sentBefore := s.dir.TotalSent()
	start := time.Now()

	if err := kick(ctx); err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("round %d: %w", s.round, err)
	}

	reason := ""
	if err := s.settle(ctx); err != nil {
		if ctx.Err() != nil {
			telemetry.RecordError(span, err)
			return "", ctx.Err()
		}
		reason = StallTimeout
	}

	stat := RoundStat{
		Round:    s.round,
		Cost:     s.TotalCost(),
		Messages: s.dir.TotalSent() - sentBefore,
		Finished: s.finishedCount(),
		Duration: time.Since(start),
	}
	stat.Changed = s.recordChanges()
	s.record(ctx, stat)

	span.SetAttributes(
		attribute.Float64("cost", finiteOr(stat.Cost, -1)),
		attribute.Int64("messages", stat.Messages),
		attribute.Int("changed", stat.Changed))
	return reason, nil
}

// tickAll ticks every agent. With runners the ticks fan out; synchronous
// agents deliver re-entrantly, so they are ticked one after another.
func (s *Simulation) tickAll(ctx context.Context) error {
	if !s.opts.UseRunner {
		for _, a := range s.agents {
			if err := a.Tick(ctx); err != nil {
				return fmt.Errorf("tick %s: %w", a.ID(), err)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.agents {
		g.Go(func() error {
			if err := a.Tick(gctx); err != nil {
				return fmt.Errorf("tick %s: %w", a.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// settle waits for quiescence within StallTimeout.
func (s *Simulation) settle(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, s.opts.StallTimeout)
	defer cancel()
	return s.tracker.WaitIdle(wctx)
}

func (s *Simulation) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// midRound returns StallMidRound if a quiet system still has an agent
// waiting for data.
func (s *Simulation) midRound() string {
	if len(s.waiting()) > 0 {
		return StallMidRound
	}
	return ""
}

func (s *Simulation) waiting() []dcop.ID {
	var out []dcop.ID
	for _, a := range s.agents {
		obs, ok := a.Solver().(solver.Observer)
		if !ok {
			continue
		}
		switch obs.Phase() {
		case solver.PhaseAwaitingPeerData, solver.PhaseAwaitingDerivedResult:
			out = append(out, a.ID())
		}
	}
	return out
}

func (s *Simulation) stall(ctx context.Context, res *Result, reason string) {
	res.Stalled, res.StallReason = true, reason
	data := events.StalledData{Reason: reason, Pending: s.tracker.Pending(), Waiting: s.waiting()}
	s.emitter.Emit(events.TypeStalled, data)
	if m := metrics(s.logger); m != nil {
		m.StallsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("protocol", s.desc.Kind.String()),
			attribute.String("reason", reason)))
	}
	telemetry.AddSpanEvent(trace.SpanFromContext(ctx), "stalled",
		attribute.String("reason", reason), attribute.Int64("pending", data.Pending))
	s.logger.Warn("round stalled",
		slog.Int("round", s.round),
		slog.String("reason", reason),
		slog.Int64("pending", data.Pending),
		slog.Int("waiting", len(data.Waiting)))
}

// recordChanges emits a value_changed event per variable that differs from
// the previous round and returns how many did.
func (s *Simulation) recordChanges() int {
	current := s.Assignment()
	changed := 0
	for _, a := range s.agents {
		id := a.ID()
		now, set := current[id]
		if !set {
			continue
		}
		before, was := s.previous[id]
		if was && before == now {
			continue
		}
		changed++
		s.emitter.Emit(events.TypeValueChanged, events.ValueChangedData{
			Variable: id, From: before, To: now, WasSet: was,
		})
	}
	s.previous = current
	return changed
}

func (s *Simulation) record(ctx context.Context, stat RoundStat) {
	s.history.Add(history.Sample{
		Round:    stat.Round,
		Cost:     stat.Cost,
		Messages: stat.Messages,
		Changed:  stat.Changed,
		Finished: stat.Finished,
		Duration: stat.Duration,
	})
	s.emitter.Emit(events.TypeRoundComplete, events.RoundCompleteData{
		Cost:     stat.Cost,
		Messages: stat.Messages,
		Changed:  stat.Changed,
		Finished: stat.Finished,
		Duration: stat.Duration,
	})

	if m := metrics(s.logger); m != nil {
		attrs := metric.WithAttributes(attribute.String("protocol", s.desc.Kind.String()))
		m.RoundsTotal.Add(ctx, 1, attrs)
		m.RoundDuration.Record(ctx, stat.Duration.Seconds(), attrs)
		m.RoundMessages.Record(ctx, stat.Messages, attrs)
		if !math.IsInf(stat.Cost, 1) {
			m.Cost.Record(ctx, stat.Cost, attrs)
		}
	}
	s.logger.Debug("round complete",
		slog.Int("round", stat.Round),
		slog.Float64("cost", finiteOr(stat.Cost, -1)),
		slog.Int64("messages", stat.Messages),
		slog.Int("changed", stat.Changed),
		slog.Int("finished", stat.Finished))
}

func (s *Simulation) finish(ctx context.Context, res *Result, err error) {
	res.Rounds = s.round
	res.Cost = s.TotalCost()
	res.BestCost = res.Cost
	if best, ok := s.history.Best(); ok && best.Cost < res.BestCost {
		res.BestCost = best.Cost
	}
	res.Messages = s.dir.TotalSent()
	res.MessagesByType = s.dir.SentCounts()
	res.Dropped = s.dir.Dropped()
	for _, a := range s.agents {
		res.Lost += a.Lost()
	}
	res.Assignment = s.Assignment()
	res.History = s.history.Samples()
	res.Duration = time.Since(res.Started)

	outcome := "max_rounds"
	switch {
	case err != nil:
		outcome = "error"
	case res.Stalled:
		outcome = "stalled"
	case res.Converged:
		outcome = "converged"
	}
	if m := metrics(s.logger); m != nil {
		m.RunsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("protocol", s.desc.Kind.String()),
			attribute.String("outcome", outcome)))
	}

	end := events.RunEndData{
		Rounds:    res.Rounds,
		Cost:      res.Cost,
		Converged: res.Converged,
		Stalled:   res.Stalled,
		Messages:  res.Messages,
		Duration:  res.Duration,
	}
	if err != nil {
		end.Error = err.Error()
	}
	s.emitter.Emit(events.TypeRunEnd, end)

	s.logger.Info("simulation finished",
		slog.String("outcome", outcome),
		slog.Int("rounds", res.Rounds),
		slog.Float64("cost", finiteOr(res.Cost, -1)),
		slog.Int64("messages", res.Messages),
		slog.Duration("duration", res.Duration))
}

// TotalCost sums every constraint once over the current assignment. It is
// +Inf while any variable is unset.
func (s *Simulation) TotalCost() float64 {
	asg := s.Assignment()
	if len(asg) < len(s.problem.Variables) {
		return math.Inf(1)
	}
	var total float64
	for _, c := range s.problem.Constraints {
		cost, err := c.Cost(asg)
		if err != nil {
			s.logger.Warn("constraint cost unavailable",
				slog.String("constraint", c.Name()), slog.String("error", err.Error()))
			return math.Inf(1)
		}
		total += cost
	}
	return total
}

// Assignment returns the set values of every variable.
func (s *Simulation) Assignment() dcop.Assignment {
	asg := make(dcop.Assignment, len(s.problem.Variables))
	for _, v := range s.problem.Variables {
		if value, err := v.Value(); err == nil {
			asg[v.ID()] = value
		}
	}
	return asg
}

func (s *Simulation) maxDomain() int {
	n := 1
	for _, v := range s.problem.Variables {
		if d := len(v.Domain()); d > n {
			n = d
		}
	}
	return n
}

func (s *Simulation) allFinished() bool {
	return s.finishedCount() == len(s.agents)
}

func (s *Simulation) finishedCount() int {
	n := 0
	for _, a := range s.agents {
		if a.Finished() {
			n++
		}
	}
	return n
}

func (s *Simulation) lowestUnfinished() (dcop.ID, bool) {
	for _, a := range s.agents {
		if !a.Finished() {
			return a.ID(), true
		}
	}
	return "", false
}

// Close resets the directory and stops every runner. It is idempotent.
func (s *Simulation) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardown()
	return nil
}

func (s *Simulation) teardown() {
	if s.dir != nil {
		s.dir.Reset()
	}
	for _, a := range s.agents {
		a.Stop()
	}
	s.ready = false
}

func sortVariables(vars []*variable.Variable) {
	sort.Slice(vars, func(i, j int) bool { return dcop.Less(vars[i].ID(), vars[j].ID()) })
}

// finiteOr maps +Inf to fallback for sinks that reject infinities.
func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fallback
	}
	return v
}
