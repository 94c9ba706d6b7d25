// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solver defines the contract between an agent and its protocol
// logic, plus the primitives every protocol round is built from: the phase
// machine, the per-round aggregation gate and the identity tie-break.
//
// # Round Shape
//
// A clock-driven round runs READY → AWAITING_PEER_DATA (payload sent to
// every neighbour) → AWAITING_DERIVED_RESULT (gate complete, local result
// computed and shared) → COMMITTED (move applied if the tie-break is won)
// → READY. Reactive protocols start rounds on receipt of a start message
// instead of Tick.
package solver

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/constraint"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/variable"
)

// Solver is the pluggable protocol logic of one agent.
//
// Thread Safety: implementations need not be safe for concurrent use. The
// runner guarantees at most one of Init, Push, Tick or Reset executes at a
// time. Finished may be called concurrently with any of them.
type Solver interface {
	// Init prepares the solver for a fresh run and moves it to READY.
	Init(ctx context.Context) error

	// Push processes one inbound message. Unexpected messages are logged
	// and discarded.
	Push(msg *message.Message)

	// Tick starts a round for clock-driven protocols. Reactive protocols
	// treat it as a no-op.
	Tick(ctx context.Context) error

	// Reset returns the solver to UNINITIALIZED and clears the variable.
	Reset()

	// Finished reports whether the solver considers itself converged.
	Finished() bool
}

// Host is the agent-side surface a solver works against.
type Host interface {
	// ID returns the agent identity.
	ID() dcop.ID

	// Variable returns the owned variable, or nil for relay agents.
	Variable() *variable.Variable

	// Constraints returns the constraints the agent participates in.
	Constraints() []constraint.Constraint

	// Neighbours returns the other variables of those constraints, sorted.
	Neighbours() []dcop.ID

	// LocalCostIf sums the agent's constraint costs with its own variable
	// set to value and the rest taken from a. Every involved variable must
	// be known.
	LocalCostIf(a dcop.Assignment, value int) (float64, error)

	// KnownCostIf is LocalCostIf restricted to constraints whose other
	// variables all appear in a.
	KnownCostIf(a dcop.Assignment, value int) float64

	// Send routes msg to one agent through the directory.
	Send(to dcop.ID, msg *message.Message)

	// SendNeighbours sends msg to every neighbour.
	SendNeighbours(msg *message.Message)

	// Logger returns the agent-scoped logger.
	Logger() *slog.Logger
}

// Observer is implemented by solvers that expose their round progress.
type Observer interface {
	Round() int
	Phase() Phase
}
