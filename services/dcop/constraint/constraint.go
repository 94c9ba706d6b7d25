// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package constraint defines cost functions over variable assignments.
//
// Constraints are stateless once built and are shared by reference between
// every agent that owns one of the involved variables.
package constraint

import (
	"fmt"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// Constraint is a pure cost function over the variables it involves.
//
// Thread Safety: implementations must be safe for concurrent use.
type Constraint interface {
	// Name identifies the constraint in logs.
	Name() string

	// Involved returns the distinct variable IDs in sorted order. Always at
	// least two entries.
	Involved() []dcop.ID

	// Cost evaluates the constraint over a. Every involved variable must be
	// present in a.
	Cost(a dcop.Assignment) (float64, error)

	// CostIf evaluates the constraint with id hypothetically set to value.
	// a is not modified.
	CostIf(a dcop.Assignment, id dcop.ID, value int) (float64, error)
}

// Involves reports whether c references id.
func Involves(c Constraint, id dcop.ID) bool {
	for _, v := range c.Involved() {
		if v == id {
			return true
		}
	}
	return false
}

// Others returns the involved variables of c other than id.
func Others(c Constraint, id dcop.ID) []dcop.ID {
	involved := c.Involved()
	out := make([]dcop.ID, 0, len(involved))
	for _, v := range involved {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Binary reports whether c involves exactly two variables.
func Binary(c Constraint) bool {
	return len(c.Involved()) == 2
}

// base carries the identity bookkeeping shared by the concrete constraints.
type base struct {
	name     string
	involved []dcop.ID
}

func newBase(name string, ids []dcop.ID) (base, error) {
	seen := make(map[dcop.ID]struct{}, len(ids))
	uniq := make([]dcop.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) < 2 {
		return base{}, fmt.Errorf("%s: %w", name, ErrTooFewVariables)
	}
	return base{name: name, involved: dcop.SortIDs(uniq)}, nil
}

func (b base) Name() string { return b.name }

func (b base) Involved() []dcop.ID {
	return append([]dcop.ID(nil), b.involved...)
}

// values extracts the involved values from a, in Involved order.
func (b base) values(a dcop.Assignment) ([]int, error) {
	out := make([]int, len(b.involved))
	for i, id := range b.involved {
		v, ok := a[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", b.name, ErrIncompleteAssignment, id)
		}
		out[i] = v
	}
	return out, nil
}

// hypothetical returns a with id overridden, failing when id is foreign.
func (b base) hypothetical(a dcop.Assignment, id dcop.ID, value int) (dcop.Assignment, error) {
	for _, v := range b.involved {
		if v == id {
			return a.With(id, value), nil
		}
	}
	return nil, fmt.Errorf("%s: %w: %s", b.name, ErrNotInvolved, id)
}
