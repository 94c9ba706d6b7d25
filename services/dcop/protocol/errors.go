// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import "errors"

var (
	// ErrUnknownKind is returned when no protocol is registered under a kind.
	ErrUnknownKind = errors.New("unknown protocol kind")

	// ErrAlreadyRegistered is returned when a kind is registered twice.
	ErrAlreadyRegistered = errors.New("protocol kind already registered")

	// ErrNilFactory is returned when a descriptor has no factory.
	ErrNilFactory = errors.New("protocol descriptor has no factory")
)
