// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the simulation-level instruments.
//
// Description:
//
//	Per-message instruments live with the runner and the directory; these
//	cover whole rounds and runs. All names use the "dcop_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// RunsTotal counts finished runs by protocol and outcome.
	RunsTotal metric.Int64Counter

	// RoundsTotal counts completed rounds by protocol.
	RoundsTotal metric.Int64Counter

	// RoundDuration records the wall time from tick to quiescence.
	RoundDuration metric.Float64Histogram

	// RoundMessages records messages sent per round.
	RoundMessages metric.Int64Histogram

	// StallsTotal counts rounds that failed to settle.
	StallsTotal metric.Int64Counter

	// Cost records the total cost after each round with a full assignment.
	Cost metric.Float64Histogram
}

// NewMetrics registers every instrument with meter.
//
// Outputs:
//
//	*Metrics - Ready-to-use instruments.
//	error - Non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter(
		"dcop_runs_total",
		metric.WithDescription("Simulation runs by protocol and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total: %w", err)
	}

	m.RoundsTotal, err = meter.Int64Counter(
		"dcop_rounds_total",
		metric.WithDescription("Completed simulation rounds"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rounds_total: %w", err)
	}

	m.RoundDuration, err = meter.Float64Histogram(
		"dcop_round_duration_seconds",
		metric.WithDescription("Time from tick to quiescence"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create round_duration: %w", err)
	}

	m.RoundMessages, err = meter.Int64Histogram(
		"dcop_round_messages",
		metric.WithDescription("Messages sent per round"),
		metric.WithUnit("{message}"),
		metric.WithExplicitBucketBoundaries(1, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return nil, fmt.Errorf("create round_messages: %w", err)
	}

	m.StallsTotal, err = meter.Int64Counter(
		"dcop_stalls_total",
		metric.WithDescription("Rounds that did not settle"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stalls_total: %w", err)
	}

	m.Cost, err = meter.Float64Histogram(
		"dcop_cost",
		metric.WithDescription("Total constraint cost after a round"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cost: %w", err)
	}

	return m, nil
}
