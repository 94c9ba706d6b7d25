// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package variable provides the decision variable owned by a DCOP agent.
//
// # Thread Safety
//
// A Variable is written only by its owning agent's solver, but the driver
// reads it concurrently to compute global cost. All methods are therefore
// guarded by an internal RWMutex.
package variable

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// Variable is a named decision variable over a finite ordered domain.
type Variable struct {
	id     dcop.ID
	name   string
	domain []int
	index  map[int]struct{}

	mu    sync.RWMutex
	value int
	isSet bool
}

// New creates a variable over an explicit domain.
//
// Description:
//
//	The domain is copied and sorted ascending. Construction fails without
//	allocating a variable when the domain is empty or repeats a value.
//
// Inputs:
//
//	id - Identity of the variable. An empty id is replaced by dcop.NewID().
//	name - Human readable name (may be empty).
//	domain - Candidate values.
//
// Outputs:
//
//	*Variable - The unset variable.
//	error - ErrEmptyDomain or ErrDuplicateValue.
func New(id dcop.ID, name string, domain []int) (*Variable, error) {
	if len(domain) == 0 {
		return nil, ErrEmptyDomain
	}
	sorted := append([]int(nil), domain...)
	sort.Ints(sorted)

	index := make(map[int]struct{}, len(sorted))
	for _, v := range sorted {
		if _, dup := index[v]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateValue, v)
		}
		index[v] = struct{}{}
	}

	if id == "" {
		id = dcop.NewID()
	}
	return &Variable{id: id, name: name, domain: sorted, index: index}, nil
}

// MaxRangeSize is the largest domain NewRange will build.
const MaxRangeSize = 1 << 16

// NewRange creates a variable over the inclusive integer range [min, max].
//
// Outputs:
//
//	error - ErrInvertedDomain when min > max, ErrDomainTooLarge when the
//	        range holds more than MaxRangeSize values.
func NewRange(id dcop.ID, name string, min, max int) (*Variable, error) {
	if min > max {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvertedDomain, min, max)
	}
	// Unsigned subtraction gives the exact span even when max-min overflows int.
	if span := uint64(max) - uint64(min); span >= MaxRangeSize {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrDomainTooLarge, min, max)
	}
	n := max - min + 1
	domain := make([]int, n)
	for i := range domain {
		domain[i] = min + i
	}
	return New(id, name, domain)
}

// ID returns the variable identity.
func (v *Variable) ID() dcop.ID { return v.id }

// Name returns the variable name, falling back to the ID.
func (v *Variable) Name() string {
	if v.name == "" {
		return v.id.String()
	}
	return v.name
}

// Domain returns a copy of the ordered domain.
func (v *Variable) Domain() []int {
	return append([]int(nil), v.domain...)
}

// Size returns the number of values in the domain.
func (v *Variable) Size() int { return len(v.domain) }

// Bounds returns the smallest and largest domain values.
func (v *Variable) Bounds() (min, max int) {
	return v.domain[0], v.domain[len(v.domain)-1]
}

// Contains reports whether value is in the domain.
func (v *Variable) Contains(value int) bool {
	_, ok := v.index[value]
	return ok
}

// Value returns the current value, or ErrUnset.
func (v *Variable) Value() (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.isSet {
		return 0, fmt.Errorf("%s: %w", v.Name(), ErrUnset)
	}
	return v.value, nil
}

// IsSet reports whether the variable holds a value.
func (v *Variable) IsSet() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isSet
}

// Set assigns value. A value outside the domain leaves the variable unchanged.
func (v *Variable) Set(value int) error {
	if !v.Contains(value) {
		return fmt.Errorf("%s: %w: %d", v.Name(), ErrValueNotInDomain, value)
	}
	v.mu.Lock()
	v.value = value
	v.isSet = true
	v.mu.Unlock()
	return nil
}

// Clear removes the current value.
func (v *Variable) Clear() {
	v.mu.Lock()
	v.value = 0
	v.isSet = false
	v.mu.Unlock()
}

// RandomValue returns a uniformly chosen domain value without assigning it.
func (v *Variable) RandomValue(rng *rand.Rand) int {
	if rng == nil {
		return v.domain[rand.Intn(len(v.domain))]
	}
	return v.domain[rng.Intn(len(v.domain))]
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.isSet {
		return fmt.Sprintf("%s=?", v.Name())
	}
	return fmt.Sprintf("%s=%d", v.Name(), v.value)
}
