// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package problem builds benchmark constraint problems.
//
// Every generator produces graph colouring instances: one variable per
// node over the domain [0, size), and a "must differ" constraint per edge.
// Variable IDs are zero-padded ("x00", "x01", ...) so their lexicographic
// order matches creation order.
package problem

import (
	"fmt"
	"math/rand"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/constraint"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/variable"
)

// ConflictPenalty is the cost of two neighbours sharing a value.
const ConflictPenalty = 1.0

// Problem is a set of variables and the constraints over them.
type Problem struct {
	Name        string
	Variables   []*variable.Variable
	Constraints []constraint.Constraint
}

// Variable returns the variable with id.
func (p *Problem) Variable(id dcop.ID) (*variable.Variable, bool) {
	for _, v := range p.Variables {
		if v.ID() == id {
			return v, true
		}
	}
	return nil, false
}

// ConstraintsFor returns the constraints involving id.
func (p *Problem) ConstraintsFor(id dcop.ID) []constraint.Constraint {
	var out []constraint.Constraint
	for _, c := range p.Constraints {
		if constraint.Involves(c, id) {
			out = append(out, c)
		}
	}
	return out
}

// Neighbours returns the sorted IDs sharing a constraint with id.
func (p *Problem) Neighbours(id dcop.ID) []dcop.ID {
	seen := make(map[dcop.ID]struct{})
	var out []dcop.ID
	for _, c := range p.ConstraintsFor(id) {
		for _, n := range constraint.Others(c, id) {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	return dcop.SortIDs(out)
}

// Edges returns the number of constraints.
func (p *Problem) Edges() int { return len(p.Constraints) }

// Line builds x0 - x1 - ... - x(n-1).
func Line(n, size int) (*Problem, error) {
	if n < 2 {
		return nil, fmt.Errorf("line of %d: %w", n, ErrTooFewAgents)
	}
	edges := make([][2]int, 0, n-1)
	for i := 0; i+1 < n; i++ {
		edges = append(edges, [2]int{i, i + 1})
	}
	return build(fmt.Sprintf("line-%d", n), n, size, edges)
}

// Ring builds a line with x(n-1) joined back to x0.
func Ring(n, size int) (*Problem, error) {
	if n < 3 {
		return nil, fmt.Errorf("ring of %d: %w", n, ErrTooFewAgents)
	}
	edges := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		edges = append(edges, [2]int{i, (i + 1) % n})
	}
	return build(fmt.Sprintf("ring-%d", n), n, size, edges)
}

// RandomGraph builds a graph where each pair is joined with probability
// density. A spanning path is added first so the graph is connected.
// The same seed always yields the same graph.
func RandomGraph(n int, density float64, size int, seed int64) (*Problem, error) {
	if n < 2 {
		return nil, fmt.Errorf("random graph of %d: %w", n, ErrTooFewAgents)
	}
	if density <= 0 || density > 1 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidDensity, density)
	}
	rng := rand.New(rand.NewSource(seed))

	perm := rng.Perm(n)
	linked := make(map[[2]int]bool)
	var edges [][2]int
	link := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		if a == b || linked[[2]int{a, b}] {
			return
		}
		linked[[2]int{a, b}] = true
		edges = append(edges, [2]int{a, b})
	}
	for i := 0; i+1 < n; i++ {
		link(perm[i], perm[i+1])
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < density {
				link(i, j)
			}
		}
	}
	return build(fmt.Sprintf("random-%d-%.2f-%d", n, density, seed), n, size, edges)
}

// ID returns the generated identity of node i in a problem of n nodes.
func ID(i, n int) dcop.ID {
	width := len(fmt.Sprint(n - 1))
	if width < 2 {
		width = 2
	}
	return dcop.ID(fmt.Sprintf("x%0*d", width, i))
}

func build(name string, n, size int, edges [][2]int) (*Problem, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDomain, size)
	}
	p := &Problem{Name: name, Variables: make([]*variable.Variable, 0, n)}
	for i := 0; i < n; i++ {
		v, err := variable.NewRange(ID(i, n), fmt.Sprintf("node %d", i), 0, size-1)
		if err != nil {
			return nil, err
		}
		p.Variables = append(p.Variables, v)
	}
	for _, e := range edges {
		c, err := constraint.NewInequality(ConflictPenalty, ID(e[0], n), ID(e[1], n))
		if err != nil {
			return nil, err
		}
		p.Constraints = append(p.Constraints, c)
	}
	return p, nil
}
