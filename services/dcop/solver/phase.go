// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"fmt"
	"sync"
)

// Phase is the position of a solver within the round protocol.
type Phase int

const (
	// PhaseUninitialized is the state before Init and after Reset.
	PhaseUninitialized Phase = iota

	// PhaseReady waits for the next round to start.
	PhaseReady

	// PhaseAwaitingPeerData has sent its round payload and is gathering
	// one message per neighbour.
	PhaseAwaitingPeerData

	// PhaseAwaitingDerivedResult has computed its local result and is
	// gathering the neighbours' results.
	PhaseAwaitingDerivedResult

	// PhaseCommitted has applied (or declined) its move for the round.
	PhaseCommitted

	// PhaseTerminated will not start further rounds.
	PhaseTerminated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "UNINITIALIZED"
	case PhaseReady:
		return "READY"
	case PhaseAwaitingPeerData:
		return "AWAITING_PEER_DATA"
	case PhaseAwaitingDerivedResult:
		return "AWAITING_DERIVED_RESULT"
	case PhaseCommitted:
		return "COMMITTED"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// AllPhases returns every phase in declaration order.
func AllPhases() []Phase {
	return []Phase{
		PhaseUninitialized,
		PhaseReady,
		PhaseAwaitingPeerData,
		PhaseAwaitingDerivedResult,
		PhaseCommitted,
		PhaseTerminated,
	}
}

// PhaseMachine holds the legal phase transitions of the round protocol.
//
// The machine enforces the following graph:
//
//	UNINITIALIZED → READY                    : Init
//	READY → AWAITING_PEER_DATA               : round started, payload sent
//	READY → TERMINATED                       : driver stopped the solver
//	AWAITING_PEER_DATA → AWAITING_DERIVED_RESULT : gate complete, result sent
//	AWAITING_DERIVED_RESULT → COMMITTED      : results gathered, move decided
//	COMMITTED → READY                        : round closed
//	COMMITTED → TERMINATED                   : round closed, no further rounds
//	* → UNINITIALIZED                        : Reset
//
// Thread Safety: PhaseMachine is immutable after construction.
type PhaseMachine struct {
	transitions map[Phase]map[Phase]bool
}

// NewPhaseMachine creates a machine with the round protocol transitions.
func NewPhaseMachine() *PhaseMachine {
	pm := &PhaseMachine{transitions: make(map[Phase]map[Phase]bool)}
	for _, p := range AllPhases() {
		pm.transitions[p] = make(map[Phase]bool)
		pm.add(p, PhaseUninitialized)
	}

	pm.add(PhaseUninitialized, PhaseReady)
	pm.add(PhaseReady, PhaseAwaitingPeerData)
	pm.add(PhaseReady, PhaseTerminated)
	pm.add(PhaseAwaitingPeerData, PhaseAwaitingDerivedResult)
	pm.add(PhaseAwaitingDerivedResult, PhaseCommitted)
	pm.add(PhaseCommitted, PhaseReady)
	pm.add(PhaseCommitted, PhaseTerminated)
	return pm
}

func (pm *PhaseMachine) add(from, to Phase) {
	pm.transitions[from][to] = true
}

// CanTransition reports whether from → to is legal.
func (pm *PhaseMachine) CanTransition(from, to Phase) bool {
	if m, ok := pm.transitions[from]; ok {
		return m[to]
	}
	return false
}

// Transition moves s to phase to.
//
// Outputs:
//
//	error - ErrInvalidTransition when the move is not legal; s is unchanged.
func (pm *PhaseMachine) Transition(s *PhaseState, to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !pm.CanTransition(s.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, to)
	}
	s.phase = to
	return nil
}

// DefaultPhaseMachine is the shared machine used by every protocol.
var DefaultPhaseMachine = NewPhaseMachine()

// PhaseState is the current phase of one solver.
//
// The solver writes it under its runner's execution lock; the driver and
// tests read it concurrently, hence the mutex.
type PhaseState struct {
	mu    sync.RWMutex
	phase Phase
}

// Get returns the current phase.
func (s *PhaseState) Get() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Reset returns the state to PhaseUninitialized.
func (s *PhaseState) Reset() {
	s.mu.Lock()
	s.phase = PhaseUninitialized
	s.mu.Unlock()
}

// To transitions s using DefaultPhaseMachine.
func (s *PhaseState) To(to Phase) error {
	return DefaultPhaseMachine.Transition(s, to)
}
