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
	"context"
	"sync"
)

// Tracker counts messages that are queued or being processed across every
// runner of one simulation.
//
// Description:
//
//	A runner adds one when a message is enqueued and removes it only after
//	the solver has returned from processing it. Any message the solver sent
//	meanwhile was counted before that decrement, so the counter can reach
//	zero only when no work is left anywhere.
//
// Thread Safety: safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	pending int64
	idle    chan struct{}
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{idle: idle}
}

// Add adjusts the pending count by delta.
func (t *Tracker) Add(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.pending
	t.pending += int64(delta)
	if t.pending < 0 {
		t.pending = 0
	}
	switch {
	case before == 0 && t.pending > 0:
		t.idle = make(chan struct{})
	case before > 0 && t.pending == 0:
		close(t.idle)
	}
}

// Done removes one pending message.
func (t *Tracker) Done() { t.Add(-1) }

// Pending returns the current count.
func (t *Tracker) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// WaitIdle blocks until the count is zero or ctx is done.
//
// Outputs:
//
//	error - ctx.Err() if the context expired first.
func (t *Tracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
