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
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianDCOP/services/dcop/events"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol"
)

// Defaults applied by DefaultOptions.
const (
	DefaultMaxRounds    = 100
	DefaultStallTimeout = 5 * time.Second
)

// Options configures a Simulation.
type Options struct {
	// Protocol selects the solver factory.
	Protocol protocol.Kind

	// ProtocolOptions are passed to the factory; Seed is overwritten per agent.
	ProtocolOptions protocol.Options

	// Registry resolves Protocol. Nil means protocol.Default().
	Registry *protocol.Registry

	// UseRunner wraps every solver in a runner; otherwise delivery is
	// synchronous on the sender's goroutine.
	UseRunner bool

	// MaxRounds bounds the run. For reactive protocols a round is one start
	// message.
	MaxRounds int

	// StallTimeout bounds the wait for quiescence after each round.
	StallTimeout time.Duration

	// DeliveryProbability is applied to every agent's inbound channel.
	// Zero is treated as lossless.
	DeliveryProbability float64

	// Seed derives every agent and solver random source.
	Seed int64

	// RoundsPerSecond paces rounds; zero means unpaced.
	RoundsPerSecond float64

	// HistorySize bounds the retained trajectory.
	HistorySize int

	// RunID names the run; empty means a generated UUID.
	RunID string

	Logger  *slog.Logger
	Emitter *events.Emitter
}

// DefaultOptions returns options for an unpaced, lossless MGM run on
// runners.
func DefaultOptions() Options {
	return Options{
		Protocol:            protocol.KindMGM,
		UseRunner:           true,
		MaxRounds:           DefaultMaxRounds,
		StallTimeout:        DefaultStallTimeout,
		DeliveryProbability: 1,
	}
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.Protocol == "" {
		o.Protocol = protocol.KindMGM
	}
	if o.Registry == nil {
		o.Registry = protocol.Default()
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.DeliveryProbability == 0 {
		o.DeliveryProbability = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Emitter == nil {
		o.Emitter = events.NewEmitter(events.WithLogger(o.Logger))
	}
	return o
}
