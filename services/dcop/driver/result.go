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

import (
	"time"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/history"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol"
)

// Stall reasons.
const (
	// StallTimeout means messages were still in flight when StallTimeout
	// expired.
	StallTimeout = "timeout"

	// StallMidRound means the system went quiet with some agent still
	// waiting for peer data, typically after a lost message.
	StallMidRound = "mid_round"

	// StallNoProgress means more reactive starts than the largest domain
	// size settled in a row without any new agent finishing.
	StallNoProgress = "no_progress"
)

// RoundStat summarizes one round.
type RoundStat struct {
	Round    int
	Cost     float64
	Messages int64
	Changed  int
	Finished int
	Duration time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Problem  string
	Protocol protocol.Kind
	Agents   int

	Rounds    int
	Cost      float64
	BestCost  float64
	Converged bool

	Stalled     bool
	StallReason string

	Messages       int64
	MessagesByType map[string]int64
	Dropped        int64
	Lost           int64

	Assignment dcop.Assignment
	History    []history.Sample

	Started  time.Time
	Duration time.Duration
}
