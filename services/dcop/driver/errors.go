// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package driver

import "errors"

var (
	// ErrNoAgents is returned when a problem has no variables.
	ErrNoAgents = errors.New("problem has no variables")

	// ErrNotSetUp is returned when Run is called before Setup.
	ErrNotSetUp = errors.New("simulation not set up")

	// ErrClosed is returned when a closed simulation is used.
	ErrClosed = errors.New("simulation closed")
)
