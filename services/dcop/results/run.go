// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results records finished simulation runs.
//
// A Recorder receives every finished run. BadgerStore keeps an embedded
// archive of full runs and InfluxSink writes the per-round cost series to
// InfluxDB. Multi fans one run out to several recorders.
package results

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/AleutianAI/AleutianDCOP/services/dcop/driver"
)

// Recorder persists finished runs.
type Recorder interface {
	// Record stores one run. The run must carry an ID.
	Record(ctx context.Context, run Run) error

	// Close releases the recorder's resources.
	Close() error
}

// Run is the serializable form of a driver.Result.
//
// Costs are pointers because an unknown cost (some variable unset) has no
// JSON representation; nil means unknown.
type Run struct {
	ID          string           `json:"id"`
	Problem     string           `json:"problem"`
	Protocol    string           `json:"protocol"`
	Agents      int              `json:"agents"`
	Rounds      int              `json:"rounds"`
	Cost        *float64         `json:"cost"`
	BestCost    *float64         `json:"best_cost"`
	Converged   bool             `json:"converged"`
	Stalled     bool             `json:"stalled"`
	StallReason string           `json:"stall_reason,omitempty"`
	Messages    int64            `json:"messages"`
	ByType      map[string]int64 `json:"messages_by_type,omitempty"`
	Dropped     int64            `json:"dropped"`
	Lost        int64            `json:"lost"`
	Assignment  map[string]int   `json:"assignment"`
	Rows        []Row            `json:"rounds_detail,omitempty"`
	Started     time.Time        `json:"started"`
	Duration    time.Duration    `json:"duration"`
}

// Row is one round of a Run.
type Row struct {
	Round    int           `json:"round"`
	Cost     *float64      `json:"cost"`
	Messages int64         `json:"messages"`
	Changed  int           `json:"changed"`
	Finished int           `json:"finished"`
	Duration time.Duration `json:"duration"`
}

// FromResult converts a driver result.
func FromResult(r *driver.Result) Run {
	run := Run{
		ID:          r.RunID,
		Problem:     r.Problem,
		Protocol:    r.Protocol.String(),
		Agents:      r.Agents,
		Rounds:      r.Rounds,
		Cost:        finite(r.Cost),
		BestCost:    finite(r.BestCost),
		Converged:   r.Converged,
		Stalled:     r.Stalled,
		StallReason: r.StallReason,
		Messages:    r.Messages,
		ByType:      r.MessagesByType,
		Dropped:     r.Dropped,
		Lost:        r.Lost,
		Assignment:  make(map[string]int, len(r.Assignment)),
		Started:     r.Started,
		Duration:    r.Duration,
	}
	for id, v := range r.Assignment {
		run.Assignment[id.String()] = v
	}
	for _, s := range r.History {
		run.Rows = append(run.Rows, Row{
			Round:    s.Round,
			Cost:     finite(s.Cost),
			Messages: s.Messages,
			Changed:  s.Changed,
			Finished: s.Finished,
			Duration: s.Duration,
		})
	}
	return run
}

func finite(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// Multi records each run with every recorder in order.
type Multi []Recorder

// Record calls every recorder, even after a failure, and joins the errors.
func (m Multi) Record(ctx context.Context, run Run) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder and joins the errors.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Recorder = Multi(nil)
