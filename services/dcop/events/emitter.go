// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is how many events an Emitter keeps by default.
const DefaultBufferSize = 1000

// Handler is a function that processes events.
type Handler func(event *Event)

// Filter is a function that determines if an event should be handled.
type Filter func(event *Event) bool

// Subscription represents a subscription to events.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Filter determines which events to handle (nil = all events).
	Filter Filter

	// Types limits which event types to handle (nil = all types).
	Types []Type
}

// Emitter broadcasts events to subscribers and keeps a bounded history.
//
// Thread Safety: Emitter is safe for concurrent use. Handlers run on the
// emitting goroutine.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	buffer        []Event
	bufferSize    int
	runID         string
	round         int
	logger        *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the event buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithRunID sets the run ID for all events.
func WithRunID(id string) EmitterOption {
	return func(e *Emitter) {
		e.runID = id
	}
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter creates a new event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    DefaultBufferSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function to call for each event.
//	types - Event types to subscribe to (none = all types).
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Filter:  filter,
		Types:   types,
	}
	e.subscriptions[sub.ID] = sub
	return sub.ID
}

// Unsubscribe removes a subscription and reports whether it existed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// Emit broadcasts an event to all matching subscribers.
//
// Description:
//
//	Stamps the event with the current run ID and round, buffers it (dropping
//	the oldest when full) and invokes every matching handler. Handler panics
//	are recovered and logged.
//
// Inputs:
//
//	eventType - The type of event.
//	data - The typed data struct for eventType.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Emitter) Emit(eventType Type, data any) {
	e.mu.RLock()
	runID, round := e.runID, e.round
	subs := make([]*Subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UnixMilli(),
		Round:     round,
		Data:      data,
	}

	e.mu.Lock()
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)
	e.mu.Unlock()

	for _, sub := range subs {
		if shouldHandle(sub, &event) {
			e.safeInvokeHandler(sub.Handler, &event)
		}
	}
}

func (e *Emitter) safeInvokeHandler(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.ID),
				slog.Any("panic", r))
		}
	}()
	handler(event)
}

func shouldHandle(sub *Subscription, event *Event) bool {
	if len(sub.Types) > 0 && !slices.Contains(sub.Types, event.Type) {
		return false
	}
	return sub.Filter == nil || sub.Filter(event)
}

// SetRunID updates the run ID for future events.
func (e *Emitter) SetRunID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runID = id
}

// RunID returns the current run ID.
func (e *Emitter) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// SetRound updates the round stamped on future events.
func (e *Emitter) SetRound(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = round
}

// Round returns the current round.
func (e *Emitter) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// Buffer returns a copy of buffered events, oldest first.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.buffer)
}

// BufferByType returns buffered events of a specific type.
func (e *Emitter) BufferByType(eventType Type) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Event
	for _, event := range e.buffer {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// ClearBuffer removes all buffered events.
func (e *Emitter) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = make([]Event, 0, e.bufferSize)
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Reset clears subscriptions, the buffer and the round.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions = make(map[string]*Subscription)
	e.buffer = make([]Event, 0, e.bufferSize)
	e.round = 0
}
