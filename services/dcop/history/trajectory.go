// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps a bounded per-round record of a simulation.
package history

import (
	"math"
	"sync"
	"time"
)

// DefaultCapacity is the number of samples kept when none is given.
const DefaultCapacity = 1024

// Sample is the state of a simulation after one round.
type Sample struct {
	Round    int           `json:"round"`
	Cost     float64       `json:"cost"`
	Messages int64         `json:"messages"`
	Changed  int           `json:"changed"`
	Finished int           `json:"finished"`
	Duration time.Duration `json:"duration"`
}

// Trajectory is a fixed-size circular record of samples. When full, the
// oldest sample is overwritten. Best is tracked over every sample ever
// added, including overwritten ones.
//
// Thread Safety: Safe for concurrent use.
type Trajectory struct {
	mu    sync.RWMutex
	data  []Sample
	head  int // next write position
	count int
	added int

	best    Sample
	hasBest bool
}

// NewTrajectory creates a trajectory holding up to capacity samples.
func NewTrajectory(capacity int) *Trajectory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trajectory{data: make([]Sample, capacity)}
}

// Add records a sample.
func (t *Trajectory) Add(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data[t.head] = s
	t.head = (t.head + 1) % len(t.data)
	if t.count < len(t.data) {
		t.count++
	}
	t.added++

	if !t.hasBest || s.Cost < t.best.Cost {
		t.best, t.hasBest = s, true
	}
}

// Samples returns the retained samples, oldest first.
func (t *Trajectory) Samples() []Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Sample, t.count)
	for i := range out {
		out[i] = t.data[t.index(i)]
	}
	return out
}

// index maps position i (0 = oldest retained) to a slot. Caller holds mu.
func (t *Trajectory) index(i int) int {
	start := t.head - t.count
	if start < 0 {
		start += len(t.data)
	}
	return (start + i) % len(t.data)
}

// Last returns the newest sample.
func (t *Trajectory) Last() (Sample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.count == 0 {
		return Sample{}, false
	}
	return t.data[t.index(t.count-1)], true
}

// Best returns the lowest-cost sample seen; the earliest wins ties.
func (t *Trajectory) Best() (Sample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.best, t.hasBest
}

// Len returns the number of retained samples.
func (t *Trajectory) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Added returns the number of samples ever added.
func (t *Trajectory) Added() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.added
}

// Improving reports whether the newest cost is strictly below the cost
// window samples earlier. It is false until window+1 samples are retained.
// An unknown (+Inf) cost followed by any finite cost counts as improving.
func (t *Trajectory) Improving(window int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if window <= 0 || t.count <= window {
		return false
	}
	newest := t.data[t.index(t.count-1)].Cost
	earlier := t.data[t.index(t.count-1-window)].Cost
	if math.IsInf(earlier, 1) {
		return !math.IsInf(newest, 1)
	}
	return newest < earlier
}

// Reset removes every sample.
func (t *Trajectory) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.data)
	t.head, t.count, t.added = 0, 0, 0
	t.best, t.hasBest = Sample{}, false
}
