// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.dcop.runner")

// Metrics (initialized lazily, shared by every runner in the process)
var (
	metricsOnce    sync.Once
	queueDepth     metric.Int64Histogram
	processedTotal metric.Int64Counter
	panicsTotal    metric.Int64Counter
	processLatency metric.Float64Histogram
)

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func initMetrics(logger *slog.Logger) {
	metricsOnce.Do(func() {
		var initErrors []string

		var err error
		queueDepth, err = meter.Int64Histogram("dcop_runner_queue_depth",
			metric.WithDescription("Mailbox depth observed on enqueue"),
		)
		if err != nil {
			initErrors = append(initErrors, "queue_depth: "+err.Error())
		}

		processedTotal, err = meter.Int64Counter("dcop_runner_processed_total",
			metric.WithDescription("Messages processed by runner workers"),
		)
		if err != nil {
			initErrors = append(initErrors, "processed_total: "+err.Error())
		}

		panicsTotal, err = meter.Int64Counter("dcop_runner_panics_total",
			metric.WithDescription("Solver panics recovered by runners"),
		)
		if err != nil {
			initErrors = append(initErrors, "panics_total: "+err.Error())
		}

		processLatency, err = meter.Float64Histogram("dcop_runner_process_duration_seconds",
			metric.WithDescription("Time spent inside Solver.Push"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "process_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			logger.Error("failed to initialize some runner metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}
