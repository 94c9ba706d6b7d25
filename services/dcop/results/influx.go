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

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by InfluxSink.
const (
	MeasurementRounds = "dcop_rounds"
	MeasurementRuns   = "dcop_runs"
)

// InfluxConfig locates an InfluxDB 2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes one point per round and one summary point per run.
//
// Round points are tagged with protocol and run and carry messages,
// changed and finished counts, plus cost when it is known. Timestamps are
// the run start plus the elapsed round durations, so consecutive rounds
// never share a timestamp.
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	logger *slog.Logger
}

// NewInfluxSink connects to the configured bucket. No request is made
// until the first Record.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := NewInfluxSinkWithWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
	s.client = client
	return s
}

// NewInfluxSinkWithWriter wraps an existing write API.
func NewInfluxSinkWithWriter(w api.WriteAPIBlocking, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &InfluxSink{writer: w, logger: logger}
}

// Record writes the run's points in one blocking request.
func (s *InfluxSink) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrMissingRunID
	}
	points := Points(run)
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points for run %s: %w", len(points), run.ID, err)
	}
	s.logger.Debug("run series written",
		slog.String("run_id", run.ID), slog.Int("points", len(points)))
	return nil
}

// Points builds the points Record writes.
func Points(run Run) []*write.Point {
	tags := map[string]string{
		"protocol": run.Protocol,
		"run":      run.ID,
	}

	points := make([]*write.Point, 0, len(run.Rows)+1)
	at := run.Started
	for _, row := range run.Rows {
		if row.Duration > 0 {
			at = at.Add(row.Duration)
		} else {
			at = at.Add(time.Microsecond)
		}
		fields := map[string]interface{}{
			"round":    row.Round,
			"messages": row.Messages,
			"changed":  row.Changed,
			"finished": row.Finished,
		}
		if row.Cost != nil {
			fields["cost"] = *row.Cost
		}
		points = append(points, influxdb2.NewPoint(MeasurementRounds, tags, fields, at))
	}

	summary := map[string]interface{}{
		"rounds":    run.Rounds,
		"messages":  run.Messages,
		"dropped":   run.Dropped,
		"lost":      run.Lost,
		"converged": run.Converged,
		"stalled":   run.Stalled,
	}
	if run.Cost != nil {
		summary["cost"] = *run.Cost
	}
	if run.BestCost != nil {
		summary["best_cost"] = *run.BestCost
	}
	points = append(points, influxdb2.NewPoint(MeasurementRuns, tags, summary, run.Started.Add(run.Duration)))
	return points
}

// Close flushes and releases the client, if the sink owns one.
func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

var _ Recorder = (*InfluxSink)(nil)
