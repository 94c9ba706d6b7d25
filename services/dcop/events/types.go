// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides typed simulation events.
//
// Events let reporters, recorders and tests observe a run without the
// driver knowing about them.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import (
	"time"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeRunStart is emitted after setup, before the first round.
	TypeRunStart Type = "run_start"

	// TypeRoundComplete is emitted when a round reaches quiescence.
	TypeRoundComplete Type = "round_complete"

	// TypeValueChanged is emitted for each variable whose value differs from
	// the previous round.
	TypeValueChanged Type = "value_changed"

	// TypeStalled is emitted when a round fails to reach quiescence in time
	// or ends with agents mid-round.
	TypeStalled Type = "stalled"

	// TypeRunEnd is emitted once, when the run stops for any reason.
	TypeRunEnd Type = "run_end"
)

// Event is one simulation event.
//
// Description:
//
//	The Data field holds the typed struct matching Type (RunStartData,
//	RoundCompleteData, ValueChangedData, StalledData or RunEndData).
//
// Thread Safety:
//
//	Event structs should be treated as immutable after creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// RunID links the event to a simulation run.
	RunID string `json:"run_id"`

	// Timestamp is when the event occurred (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Round is the driver round when this event occurred.
	Round int `json:"round"`

	// Data contains event-specific data.
	Data any `json:"data,omitempty"`
}

// RunStartData is the data for run start events.
type RunStartData struct {
	Problem     string `json:"problem"`
	Protocol    string `json:"protocol"`
	Agents      int    `json:"agents"`
	Constraints int    `json:"constraints"`
	UseRunner   bool   `json:"use_runner"`
}

// RoundCompleteData is the data for round complete events.
type RoundCompleteData struct {
	// Cost is the total constraint cost after the round; +Inf while any
	// variable is unset.
	Cost float64 `json:"cost"`

	// Messages is the number of messages sent during the round.
	Messages int64 `json:"messages"`

	// Changed is how many variables changed value.
	Changed int `json:"changed"`

	// Finished is how many agents report Finished.
	Finished int `json:"finished"`

	Duration time.Duration `json:"duration"`
}

// ValueChangedData is the data for value changed events.
type ValueChangedData struct {
	Variable dcop.ID `json:"variable"`
	From     int     `json:"from"`
	To       int     `json:"to"`

	// WasSet is false when the variable had no value before.
	WasSet bool `json:"was_set"`
}

// StalledData is the data for stall events.
type StalledData struct {
	// Reason is "timeout" or "mid_round".
	Reason string `json:"reason"`

	// Pending is the number of messages still in flight.
	Pending int64 `json:"pending"`

	// Waiting lists the agents not back in READY.
	Waiting []dcop.ID `json:"waiting,omitempty"`
}

// RunEndData is the data for run end events.
type RunEndData struct {
	Rounds    int           `json:"rounds"`
	Cost      float64       `json:"cost"`
	Converged bool          `json:"converged"`
	Stalled   bool          `json:"stalled"`
	Messages  int64         `json:"messages"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}
