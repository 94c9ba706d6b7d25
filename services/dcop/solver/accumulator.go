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
	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// Accumulator gathers one entry per source for a single round.
//
// Description:
//
//	The gate is complete when it holds an entry for every member of the
//	live neighbour set. Entries from sources outside that set never count,
//	and a later entry from the same source overwrites the earlier one, so
//	the gate cannot be satisfied by a fixed message count.
//
// Thread Safety: not safe for concurrent use. Solvers own their
// accumulators and are serialized by their runner.
type Accumulator[T any] struct {
	entries map[dcop.ID]T
	fired   bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator[T any]() *Accumulator[T] {
	return &Accumulator[T]{entries: make(map[dcop.ID]T)}
}

// Put records v from src.
func (a *Accumulator[T]) Put(src dcop.ID, v T) {
	a.entries[src] = v
}

// Get returns the entry from src.
func (a *Accumulator[T]) Get(src dcop.ID) (T, bool) {
	v, ok := a.entries[src]
	return v, ok
}

// Len returns the number of distinct sources recorded.
func (a *Accumulator[T]) Len() int { return len(a.entries) }

// Complete reports whether every neighbour has an entry.
func (a *Accumulator[T]) Complete(neighbours []dcop.ID) bool {
	have := 0
	for _, n := range neighbours {
		if _, ok := a.entries[n]; ok {
			have++
		}
	}
	return have == len(neighbours)
}

// Fire returns true the first time the gate is complete and false on every
// later call, so a round's derived result is computed exactly once.
func (a *Accumulator[T]) Fire(neighbours []dcop.ID) bool {
	if a.fired || !a.Complete(neighbours) {
		return false
	}
	a.fired = true
	return true
}

// Fired reports whether Fire has already returned true.
func (a *Accumulator[T]) Fired() bool { return a.fired }

// Entries returns the entries restricted to neighbours.
func (a *Accumulator[T]) Entries(neighbours []dcop.ID) map[dcop.ID]T {
	out := make(map[dcop.ID]T, len(neighbours))
	for _, n := range neighbours {
		if v, ok := a.entries[n]; ok {
			out[n] = v
		}
	}
	return out
}

// Clear empties the accumulator and re-arms Fire.
func (a *Accumulator[T]) Clear() {
	a.entries = make(map[dcop.ID]T)
	a.fired = false
}

// RoundRelation classifies a message round against the current round.
type RoundRelation int

const (
	// RoundStale is earlier than the current round.
	RoundStale RoundRelation = iota
	// RoundCurrent matches the current round.
	RoundCurrent
	// RoundFuture is later than the current round.
	RoundFuture
)

// Classify compares a message round to the solver's current round.
func Classify(current, msgRound int) RoundRelation {
	switch {
	case msgRound < current:
		return RoundStale
	case msgRound > current:
		return RoundFuture
	default:
		return RoundCurrent
	}
}

// RoundBuffer keeps one Accumulator per round so that messages stamped with
// a future round are held until the solver gets there.
type RoundBuffer[T any] struct {
	rounds map[int]*Accumulator[T]
}

// NewRoundBuffer creates an empty buffer.
func NewRoundBuffer[T any]() *RoundBuffer[T] {
	return &RoundBuffer[T]{rounds: make(map[int]*Accumulator[T])}
}

// For returns the accumulator of round, creating it on first use.
func (b *RoundBuffer[T]) For(round int) *Accumulator[T] {
	acc, ok := b.rounds[round]
	if !ok {
		acc = NewAccumulator[T]()
		b.rounds[round] = acc
	}
	return acc
}

// DropBefore discards every round earlier than round.
func (b *RoundBuffer[T]) DropBefore(round int) {
	for r := range b.rounds {
		if r < round {
			delete(b.rounds, r)
		}
	}
}

// Len returns the number of rounds held.
func (b *RoundBuffer[T]) Len() int { return len(b.rounds) }

// Clear discards every round.
func (b *RoundBuffer[T]) Clear() {
	b.rounds = make(map[int]*Accumulator[T])
}
