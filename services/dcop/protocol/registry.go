// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol maps protocol kinds to solver factories.
//
// The set of protocols is closed: the default registry knows the three
// built-in kinds and a driver picks one by name. Tests and experiments may
// build their own Registry to add variants.
package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianDCOP/services/dcop/message"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol/coop"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol/maxsum"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/protocol/mgm"
	"github.com/AleutianAI/AleutianDCOP/services/dcop/solver"
)

// Kind names a protocol.
type Kind string

// Built-in protocol kinds.
const (
	KindMGM    Kind = "mgm"
	KindMaxSum Kind = "maxsum"
	KindCoop   Kind = "coop"
)

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// Options carries the tunables shared by every factory. Each protocol reads
// the fields that apply to it and ignores the rest; zero values select the
// protocol's defaults.
type Options struct {
	// Seed feeds the solver's random source. Drivers derive one per agent.
	Seed int64

	// KeepPreset keeps a value set on the variable before Init (mgm).
	KeepPreset bool

	// StableRounds, Damping and Noise tune maxsum.
	StableRounds int
	Damping      float64
	Noise        float64

	// Bound is the initial uniqueness bound (coop).
	Bound int
}

// Factory builds a solver for one agent.
type Factory func(host solver.Host, opts Options) solver.Solver

// Descriptor describes a registered protocol.
type Descriptor struct {
	Kind        Kind
	Description string

	// Reactive protocols ignore Tick; the driver starts them with StartMessage.
	Reactive bool

	// StartMessage builds the kick-off message for reactive protocols.
	StartMessage func() *message.Message

	New Factory
}

// Registry holds protocol descriptors by kind.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[Kind]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[Kind]Descriptor)}
}

// Register adds a descriptor.
//
// Outputs:
//   - error: ErrNilFactory if d.New is nil, ErrAlreadyRegistered if the kind
//     is taken.
func (r *Registry) Register(d Descriptor) error {
	if d.New == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, d.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[d.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, d.Kind)
	}
	r.kinds[d.Kind] = d
	return nil
}

// MustRegister registers d and panics on error. Use during initialization only.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(fmt.Sprintf("protocol: failed to register %s: %v", d.Kind, err))
	}
}

// Lookup returns the descriptor for kind.
//
// Outputs:
//   - Descriptor: The registered descriptor.
//   - error: ErrUnknownKind if nothing is registered under kind.
func (r *Registry) Lookup(kind Kind) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.kinds[kind]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return d, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptors returns every descriptor sorted by kind.
func (r *Registry) Descriptors() []Descriptor {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, r.kinds[k])
	}
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of built-in protocols.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		r.MustRegister(Descriptor{
			Kind:        KindMGM,
			Description: "round-based local search; the neighbour with the largest gain moves",
			New: func(host solver.Host, o Options) solver.Solver {
				opts := []mgm.Option{mgm.WithSeed(o.Seed)}
				if o.KeepPreset {
					opts = append(opts, mgm.WithPresetValue())
				}
				return mgm.New(host, opts...)
			},
		})
		r.MustRegister(Descriptor{
			Kind:        KindMaxSum,
			Description: "min-sum belief propagation over pairwise constraints",
			New: func(host solver.Host, o Options) solver.Solver {
				opts := []maxsum.Option{maxsum.WithSeed(o.Seed), maxsum.WithDamping(o.Damping)}
				if o.StableRounds > 0 {
					opts = append(opts, maxsum.WithStableRounds(o.StableRounds))
				}
				if o.Noise > 0 {
					opts = append(opts, maxsum.WithNoise(o.Noise))
				}
				return maxsum.New(host, opts...)
			},
		})
		r.MustRegister(Descriptor{
			Kind:         KindCoop,
			Description:  "reactive cooperative assignment with escalating uniqueness bound",
			Reactive:     true,
			StartMessage: coop.StartMessage,
			New: func(host solver.Host, o Options) solver.Solver {
				return coop.New(host, coop.WithBound(o.Bound))
			},
		})
		defaultRegistry = r
	})
	return defaultRegistry
}
