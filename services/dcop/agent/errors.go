// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "errors"

var (
	// ErrNoSolver is returned by Init and Tick before SetSolver.
	ErrNoSolver = errors.New("agent has no solver")

	// ErrIdentityMismatch is returned when an explicit agent id disagrees
	// with the id of the owned variable.
	ErrIdentityMismatch = errors.New("agent id differs from variable id")

	// ErrInvalidProbability is returned for a delivery probability outside
	// [0, 1].
	ErrInvalidProbability = errors.New("delivery probability must be in [0, 1]")
)
