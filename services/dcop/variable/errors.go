// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package variable

import "errors"

// Sentinel errors for variable operations.
var (
	// ErrEmptyDomain is returned when a variable is built with no values.
	ErrEmptyDomain = errors.New("domain is empty")

	// ErrInvertedDomain is returned when a range domain has min > max.
	ErrInvertedDomain = errors.New("domain bounds are inverted")

	// ErrDomainTooLarge is returned when a range domain exceeds MaxRangeSize.
	ErrDomainTooLarge = errors.New("domain is too large")

	// ErrDuplicateValue is returned when an explicit domain repeats a value.
	ErrDuplicateValue = errors.New("domain contains a duplicate value")

	// ErrValueNotInDomain is returned by Set for a value outside the domain.
	// The variable is left unchanged.
	ErrValueNotInDomain = errors.New("value not in domain")

	// ErrUnset is returned by Value when no value has been assigned.
	ErrUnset = errors.New("variable is unset")
)
