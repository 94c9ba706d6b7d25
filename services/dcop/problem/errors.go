// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import "errors"

var (
	// ErrTooFewAgents is returned when a generator is asked for fewer agents
	// than its topology needs.
	ErrTooFewAgents = errors.New("too few agents")

	// ErrInvalidDensity is returned when a random graph density is outside (0, 1].
	ErrInvalidDensity = errors.New("density must be in (0, 1]")

	// ErrInvalidDomain is returned when the domain size is below 1.
	ErrInvalidDomain = errors.New("domain size must be at least 1")
)
