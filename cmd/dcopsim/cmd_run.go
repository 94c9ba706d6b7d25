// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDCOP/pkg/logging"
	"github.com/AleutianAI/AleutianDCOP/pkg/ux"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/config"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/driver"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/events"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/results"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/telemetry"
)

// runExperiment implements "dcopsim run".
//
// Description:
//
//	Resolves the config, brings up logging, telemetry and recorders, runs
//	one simulation, records it and prints the outcome. A stalled run is
//	reported but is not an error; setup and recording failures are.
func runExperiment(cmd *cobra.Command, f *runFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.LoggerConfig("dcopsim"))
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if f.metricsAddr != "" {
		closeMetrics, err := serveMetrics(f.metricsAddr, logger.Slog())
		if err != nil {
			return err
		}
		defer closeMetrics()
	}

	p, err := cfg.Problem.BuildProblem()
	if err != nil {
		return fmt.Errorf("building problem: %w", err)
	}

	recorder, err := openRecorders(cfg.Results, logger.Slog())
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn("closing recorders failed", slog.String("error", err.Error()))
		}
	}()

	opts := cfg.DriverOptions()
	opts.Logger = logger.Slog()
	opts.Emitter = events.NewEmitter(events.WithLogger(opts.Logger))
	if f.progress {
		subscribeProgress(opts.Emitter, cmd.ErrOrStderr())
	}

	sim, err := driver.New(p, opts)
	if err != nil {
		return err
	}
	defer sim.Close()
	runLog := logger.Run(sim.RunID())

	if err := sim.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	res, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", sim.RunID(), err)
	}

	run := results.FromResult(res)
	if err := recorder.Record(ctx, run); err != nil {
		runLog.Error("recording run failed", slog.String("error", err.Error()))
		return fmt.Errorf("recording run: %w", err)
	}
	runLog.Info("run complete",
		slog.Int("rounds", res.Rounds),
		slog.Bool("converged", res.Converged),
		slog.Bool("stalled", res.Stalled))

	out := cmd.OutOrStdout()
	if f.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	ux.RenderSummary(out, summarize(sim, res))
	return nil
}

// applyFlags overlays the flags the user set.
func applyFlags(cmd *cobra.Command, f *runFlags, cfg *config.ExperimentConfig) {
	fl := cmd.Flags()
	if fl.Changed("protocol") {
		cfg.Protocol.Kind = f.protocol
	}
	if fl.Changed("topology") {
		cfg.Problem.Topology = f.topology
	}
	if fl.Changed("agents") {
		cfg.Problem.Agents = f.agents
	}
	if fl.Changed("rounds") {
		cfg.Run.MaxRounds = f.rounds
	}
	if fl.Changed("seed") {
		cfg.Run.Seed = f.seed
	}
	if fl.Changed("runner") {
		cfg.Run.UseRunner = f.runner
	}
	if fl.Changed("delivery-probability") {
		cfg.Run.DeliveryProbability = f.deliveryProbability
	}
	if fl.Changed("metrics-addr") {
		cfg.Telemetry.MetricExporter = telemetry.ExporterPrometheus
	}
}

// serveMetrics exposes the Prometheus handler until the returned func is
// called.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// openRecorders builds the recorders the results section enables.
func openRecorders(rc config.ResultsConfig, logger *slog.Logger) (results.Multi, error) {
	var m results.Multi
	if rc.BadgerDir != "" {
		store, err := results.OpenBadgerStore(rc.BadgerDir, logger)
		if err != nil {
			return nil, err
		}
		m = append(m, store)
	}
	if rc.InfluxURL != "" {
		m = append(m, results.NewInfluxSink(results.InfluxConfig{
			URL:    rc.InfluxURL,
			Token:  rc.InfluxToken,
			Org:    rc.InfluxOrg,
			Bucket: rc.InfluxBucket,
		}, logger))
	}
	return m, nil
}

func subscribeProgress(em *events.Emitter, w io.Writer) {
	em.Subscribe(func(e *events.Event) {
		switch d := e.Data.(type) {
		case events.RoundCompleteData:
			fmt.Fprintf(w, "round %d cost=%s messages=%d changed=%d finished=%d\n",
				e.Round, ux.FormatCost(d.Cost), d.Messages, d.Changed, d.Finished)
		case events.StalledData:
			fmt.Fprintf(w, "round %d stalled: %s (%d waiting)\n", e.Round, d.Reason, len(d.Waiting))
		}
	}, events.TypeRoundComplete, events.TypeStalled)
}

func summarize(sim *driver.Simulation, res *driver.Result) ux.RunSummary {
	finished := 0
	for _, a := range sim.Agents() {
		if a.Finished() {
			finished++
		}
	}
	trace := make([]float64, 0, len(res.History))
	for _, s := range res.History {
		trace = append(trace, s.Cost)
	}
	return ux.RunSummary{
		RunID:       res.RunID,
		Problem:     res.Problem,
		Protocol:    res.Protocol.String(),
		Agents:      res.Agents,
		Finished:    finished,
		Rounds:      res.Rounds,
		Cost:        res.Cost,
		BestCost:    res.BestCost,
		Converged:   res.Converged,
		Stalled:     res.Stalled,
		StallReason: res.StallReason,
		Messages:    res.Messages,
		ByType:      res.MessagesByType,
		Dropped:     res.Dropped,
		Lost:        res.Lost,
		Duration:    res.Duration,
		CostTrace:   trace,
	}
}
