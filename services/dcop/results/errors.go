// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import "errors"

var (
	// ErrNotFound is returned by Get when no run is stored under an ID.
	ErrNotFound = errors.New("run not found")

	// ErrMissingRunID is returned when a run without an ID is recorded.
	ErrMissingRunID = errors.New("run has no id")

	// ErrNoPath is returned when a persistent store is opened without a
	// directory.
	ErrNoPath = errors.New("path is required for persistent store")
)
