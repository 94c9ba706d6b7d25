// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package directory routes messages between agents of one simulation.
//
// A Directory is owned by the experiment that creates it. Several may live
// in one process; they share only the Prometheus counters.
package directory

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
)

// Endpoint is the receiving side of a registration.
type Endpoint interface {
	// Deliver hands msg to the endpoint. It must not block for long; agents
	// backed by a runner only enqueue.
	Deliver(msg *message.Message)

	// Reset returns the endpoint to its pre-init state.
	Reset()
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger used for drop diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Directory maps identities to endpoints and counts traffic.
//
// Thread Safety: safe for concurrent use. Registration, counting and
// lookup happen under one mutex; Deliver runs outside it so a synchronous
// endpoint may send from inside Deliver.
type Directory struct {
	mu        sync.Mutex
	endpoints map[dcop.ID]Endpoint
	order     []dcop.ID
	sent      map[string]int64
	delivered int64
	dropped   int64

	logger *slog.Logger
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		endpoints: make(map[dcop.ID]Endpoint),
		sent:      make(map[string]int64),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "directory"))
	return d
}

// Register binds id to ep. Registering an existing id replaces its endpoint
// and keeps its position in broadcast order.
func (d *Directory) Register(id dcop.ID, ep Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.endpoints[id]; !ok {
		d.order = append(d.order, id)
		recordRegistrations(1)
	}
	d.endpoints[id] = ep
}

// Send routes msg to id.
//
// Description:
//
//	The per-type counter is incremented whether or not id is known. An
//	unknown id drops the message silently; that is how agents that have not
//	registered yet, or have left, are modelled. A successful hand-off
//	increments the delivered total.
func (d *Directory) Send(id dcop.ID, msg *message.Message) {
	d.mu.Lock()
	d.sent[msg.Type()]++
	ep, ok := d.endpoints[id]
	if ok {
		d.delivered++
	} else {
		d.dropped++
	}
	d.mu.Unlock()

	recordSend(msg.Type(), ok)
	if !ok {
		d.logger.Debug("dropping message for unknown recipient",
			slog.String("to", id.String()),
			slog.String("type", msg.Type()),
			slog.String("from", msg.Source().String()))
		return
	}
	ep.Deliver(msg)
}

// Broadcast sends msg to every registered id in registration order. Each
// recipient counts as one send.
func (d *Directory) Broadcast(msg *message.Message) {
	for _, id := range d.IDs() {
		d.Send(id, msg)
	}
}

// Reset tells every endpoint to reset, then empties the registry and zeroes
// every counter.
func (d *Directory) Reset() {
	d.mu.Lock()
	eps := make([]Endpoint, 0, len(d.order))
	for _, id := range d.order {
		eps = append(eps, d.endpoints[id])
	}
	d.mu.Unlock()

	for _, ep := range eps {
		ep.Reset()
	}

	d.mu.Lock()
	recordRegistrations(-len(d.order))
	d.endpoints = make(map[dcop.ID]Endpoint)
	d.order = nil
	d.sent = make(map[string]int64)
	d.delivered = 0
	d.dropped = 0
	d.mu.Unlock()
}

// Lookup returns the endpoint registered for id.
func (d *Directory) Lookup(id dcop.ID) (Endpoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ep, ok := d.endpoints[id]
	return ep, ok
}

// IDs returns the registered identities in registration order.
func (d *Directory) IDs() []dcop.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dcop.ID(nil), d.order...)
}

// Len returns the number of registered identities.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// SentCounts returns a copy of the per-type send counters.
func (d *Directory) SentCounts() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.sent))
	for k, v := range d.sent {
		out[k] = v
	}
	return out
}

// TotalSent returns the number of messages delivered to an endpoint.
func (d *Directory) TotalSent() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// Dropped returns the number of messages addressed to unknown identities.
func (d *Directory) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
