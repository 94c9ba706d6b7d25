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

import "errors"

// Sentinel errors for constraint construction and evaluation.
var (
	// ErrNotInvolved is returned when a cost is requested for a variable the
	// constraint does not reference.
	ErrNotInvolved = errors.New("variable not involved in constraint")

	// ErrOutOfRange is returned when a value falls outside a cost matrix.
	ErrOutOfRange = errors.New("value outside cost matrix bounds")

	// ErrTooFewVariables is returned when a constraint references fewer than
	// two distinct variables.
	ErrTooFewVariables = errors.New("constraint needs at least two variables")

	// ErrIncompleteAssignment is returned when an assignment lacks a value for
	// an involved variable.
	ErrIncompleteAssignment = errors.New("assignment missing involved variable")
)
