// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package constraint

import (
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// -----------------------------------------------------------------------------
// Inequality
// -----------------------------------------------------------------------------

// Inequality charges Penalty for every pair of involved variables holding the
// same value. With two variables this is the classic "must differ" edge of
// graph colouring.
type Inequality struct {
	base
	penalty float64
}

// NewInequality builds a "must differ" constraint over ids.
//
// Inputs:
//
//	penalty - Cost per equal pair. Must be positive.
//	ids - Involved variables; duplicates are collapsed.
//
// Outputs:
//
//	*Inequality - The constraint.
//	error - ErrTooFewVariables if fewer than two distinct ids.
func NewInequality(penalty float64, ids ...dcop.ID) (*Inequality, error) {
	if penalty <= 0 {
		return nil, fmt.Errorf("inequality penalty must be positive, got %v", penalty)
	}
	b, err := newBase(fmt.Sprintf("neq%v", ids), ids)
	if err != nil {
		return nil, err
	}
	return &Inequality{base: b, penalty: penalty}, nil
}

// Cost implements Constraint.
func (c *Inequality) Cost(a dcop.Assignment) (float64, error) {
	vals, err := c.values(a)
	if err != nil {
		return 0, err
	}
	var cost float64
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			if vals[i] == vals[j] {
				cost += c.penalty
			}
		}
	}
	return cost, nil
}

// CostIf implements Constraint.
func (c *Inequality) CostIf(a dcop.Assignment, id dcop.ID, value int) (float64, error) {
	h, err := c.hypothetical(a, id, value)
	if err != nil {
		return 0, err
	}
	return c.Cost(h)
}

// -----------------------------------------------------------------------------
// Matrix
// -----------------------------------------------------------------------------

// Matrix is a binary constraint backed by an explicit cost table.
//
// Costs[i][j] is the cost of Row = RowMin+i and Col = ColMin+j.
type Matrix struct {
	base
	row, col       dcop.ID
	rowMin, colMin int
	costs          [][]float64
}

// NewMatrix builds a binary cost-matrix constraint.
//
// Description:
//
//	The matrix is copied. Every row must have the same length. Lookups
//	outside the matrix fail with ErrOutOfRange at evaluation time.
//
// Inputs:
//
//	row, col - The two involved variables.
//	rowMin, colMin - The domain value mapped to index zero on each axis.
//	costs - Row-major cost table.
func NewMatrix(row, col dcop.ID, rowMin, colMin int, costs [][]float64) (*Matrix, error) {
	b, err := newBase(fmt.Sprintf("matrix[%s,%s]", row, col), []dcop.ID{row, col})
	if err != nil {
		return nil, err
	}
	if len(costs) == 0 || len(costs[0]) == 0 {
		return nil, fmt.Errorf("%s: empty cost matrix", b.name)
	}
	cp := make([][]float64, len(costs))
	for i, r := range costs {
		if len(r) != len(costs[0]) {
			return nil, fmt.Errorf("%s: ragged row %d", b.name, i)
		}
		cp[i] = append([]float64(nil), r...)
	}
	return &Matrix{base: b, row: row, col: col, rowMin: rowMin, colMin: colMin, costs: cp}, nil
}

// Lookup returns the cost for the given row and column values.
func (c *Matrix) Lookup(rowValue, colValue int) (float64, error) {
	i, j := rowValue-c.rowMin, colValue-c.colMin
	if i < 0 || i >= len(c.costs) || j < 0 || j >= len(c.costs[i]) {
		return 0, fmt.Errorf("%s: %w: (%d, %d)", c.name, ErrOutOfRange, rowValue, colValue)
	}
	return c.costs[i][j], nil
}

// Cost implements Constraint.
func (c *Matrix) Cost(a dcop.Assignment) (float64, error) {
	r, ok := a[c.row]
	if !ok {
		return 0, fmt.Errorf("%s: %w: %s", c.name, ErrIncompleteAssignment, c.row)
	}
	v, ok := a[c.col]
	if !ok {
		return 0, fmt.Errorf("%s: %w: %s", c.name, ErrIncompleteAssignment, c.col)
	}
	return c.Lookup(r, v)
}

// CostIf implements Constraint.
func (c *Matrix) CostIf(a dcop.Assignment, id dcop.ID, value int) (float64, error) {
	h, err := c.hypothetical(a, id, value)
	if err != nil {
		return 0, err
	}
	return c.Cost(h)
}

// -----------------------------------------------------------------------------
// Threshold
// -----------------------------------------------------------------------------

// Threshold penalises the sum of involved values exceeding Limit. The cost is
// Weight times the excess, zero at or below the limit.
type Threshold struct {
	base
	limit  float64
	weight float64
}

// NewThreshold builds a capacity-style constraint over ids.
func NewThreshold(limit, weight float64, ids ...dcop.ID) (*Threshold, error) {
	if weight < 0 || math.IsNaN(weight) {
		return nil, fmt.Errorf("threshold weight must be non-negative, got %v", weight)
	}
	b, err := newBase(fmt.Sprintf("threshold%v<=%v", ids, limit), ids)
	if err != nil {
		return nil, err
	}
	return &Threshold{base: b, limit: limit, weight: weight}, nil
}

// Cost implements Constraint.
func (c *Threshold) Cost(a dcop.Assignment) (float64, error) {
	vals, err := c.values(a)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range vals {
		sum += float64(v)
	}
	if sum <= c.limit {
		return 0, nil
	}
	return (sum - c.limit) * c.weight, nil
}

// CostIf implements Constraint.
func (c *Threshold) CostIf(a dcop.Assignment, id dcop.ID, value int) (float64, error) {
	h, err := c.hypothetical(a, id, value)
	if err != nil {
		return 0, err
	}
	return c.Cost(h)
}

// Compile-time interface checks.
var (
	_ Constraint = (*Inequality)(nil)
	_ Constraint = (*Matrix)(nil)
	_ Constraint = (*Threshold)(nil)
)
