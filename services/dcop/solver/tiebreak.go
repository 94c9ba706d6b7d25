// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solver

import (
	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// WinsTieBreak decides whether self may commit its move this round.
//
// Description:
//
//	self wins when its gain is strictly greater than every neighbour gain,
//	or equals the maximum and self sorts strictly lower than every neighbour
//	reporting that same gain. A non-positive gain never wins. Because the
//	rule depends only on gains and identities, every agent reaches the same
//	verdict about every pair regardless of message arrival order.
//
// Inputs:
//
//	self - The deciding agent.
//	gain - Its own best improvement this round.
//	neighbours - Improvement reported by each neighbour.
//
// Outputs:
//
//	bool - True if self commits.
func WinsTieBreak(self dcop.ID, gain float64, neighbours map[dcop.ID]float64) bool {
	if gain <= 0 {
		return false
	}
	for id, g := range neighbours {
		if g > gain {
			return false
		}
		if g == gain && !dcop.Less(self, id) {
			return false
		}
	}
	return true
}
