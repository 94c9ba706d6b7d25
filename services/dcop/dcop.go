// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dcop holds the value types shared by every layer of the
// distributed constraint optimization runtime.
//
// Agents each own one decision variable and cooperate, through asynchronous
// messages only, to minimise the summed cost of the constraints between
// them. The subpackages provide the pieces:
//
//   - variable: finite ordered domains with an optional current value
//   - constraint: pure cost functions over assignments
//   - message: immutable envelopes exchanged between agents
//   - directory: the registry that routes messages to mailboxes
//   - runner: the actor wrapper that serializes a solver
//   - solver: the round/phase primitives every protocol is built from
//   - agent: the owner of a variable and its constraints
//   - protocol/...: concrete protocols (mgm, maxsum, coop)
//   - driver: the experiment loop that ticks agents and detects termination
//
// # Ownership Model
//
// Assignment and CostTable are maps and therefore reference types. Any value
// that crosses an agent boundary is cloned first; the message package does
// this on construction and on every read.
package dcop

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// ID identifies a variable or an agent.
//
// IDs are compared lexicographically. That order is the tie-break order used
// by every protocol, so experiments that need reproducible winners should use
// explicit IDs rather than NewID.
type ID string

// NewID returns a fresh random identity.
func NewID() ID {
	return ID(uuid.NewString())
}

// String returns the ID as a string.
func (id ID) String() string {
	return string(id)
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool {
	return a < b
}

// SortIDs sorts ids in place in tie-break order and returns them.
func SortIDs(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assignment maps variable identity to value.
//
// A missing key means the value is unknown. Assignments are not safe for
// concurrent use; each solver keeps its own.
type Assignment map[ID]int

// Clone returns an independent copy. A nil receiver yields an empty map.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// With returns a copy of a with id set to value.
func (a Assignment) With(id ID, value int) Assignment {
	out := a.Clone()
	out[id] = value
	return out
}

// Lookup returns the value for id and whether it is known.
func (a Assignment) Lookup(id ID) (int, bool) {
	v, ok := a[id]
	return v, ok
}

// CostTable maps a candidate value to a cost.
type CostTable map[int]float64

// NewCostTable returns a table with a zero entry for every value in domain.
func NewCostTable(domain []int) CostTable {
	t := make(CostTable, len(domain))
	for _, v := range domain {
		t[v] = 0
	}
	return t
}

// Clone returns an independent copy.
func (t CostTable) Clone() CostTable {
	out := make(CostTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Values returns the table's keys in ascending order.
func (t CostTable) Values() []int {
	vals := make([]int, 0, len(t))
	for v := range t {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	return vals
}

// Min returns the smallest cost in the table, or +Inf when empty.
func (t CostTable) Min() float64 {
	best := math.Inf(1)
	for _, c := range t {
		if c < best {
			best = c
		}
	}
	return best
}

// ArgMin returns the value with the smallest cost. Equal costs resolve to
// the lowest value. ok is false for an empty table.
func (t CostTable) ArgMin() (value int, ok bool) {
	best := math.Inf(1)
	for _, v := range t.Values() {
		if !ok || t[v] < best {
			value, best, ok = v, t[v], true
		}
	}
	return value, ok
}

// Optimal returns every value whose cost equals the minimum, ascending.
func (t CostTable) Optimal() []int {
	best := t.Min()
	var out []int
	for _, v := range t.Values() {
		if t[v] == best {
			out = append(out, v)
		}
	}
	return out
}

// Add adds other into t entry by entry. Values missing from t are ignored.
func (t CostTable) Add(other CostTable) {
	for v := range t {
		t[v] += other[v]
	}
}

// Normalize subtracts the minimum cost from every entry so the smallest
// entry becomes zero. Keeps message values bounded across rounds.
func (t CostTable) Normalize() {
	if len(t) == 0 {
		return
	}
	m := t.Min()
	for v := range t {
		t[v] -= m
	}
}
