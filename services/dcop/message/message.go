// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package message defines the envelope agents exchange.
//
// A Message is immutable after New returns. Every payload is copied in, and
// every accessor copies out, so one message may be broadcast to many
// mailboxes without any receiver observing another's edits.
package message

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianDCOP/services/dcop"
)

// Message is a typed envelope with named payload fields.
type Message struct {
	typ    string
	source dcop.ID
	round  int

	numbers     map[string]float64
	assignments map[string]dcop.Assignment
	tables      map[string]dcop.CostTable
}

// Field sets one payload field during New.
type Field func(*Message)

// Number attaches a numeric field.
func Number(name string, v float64) Field {
	return func(m *Message) {
		if m.numbers == nil {
			m.numbers = make(map[string]float64)
		}
		m.numbers[name] = v
	}
}

// Int attaches an integer field. Stored as a number.
func Int(name string, v int) Field {
	return Number(name, float64(v))
}

// WithAssignment attaches a copy of a.
func WithAssignment(name string, a dcop.Assignment) Field {
	return func(m *Message) {
		if m.assignments == nil {
			m.assignments = make(map[string]dcop.Assignment)
		}
		m.assignments[name] = a.Clone()
	}
}

// WithTable attaches a copy of t.
func WithTable(name string, t dcop.CostTable) Field {
	return func(m *Message) {
		if m.tables == nil {
			m.tables = make(map[string]dcop.CostTable)
		}
		m.tables[name] = t.Clone()
	}
}

// New builds a message.
//
// Inputs:
//
//	typ - Protocol-scoped message type, e.g. "mgm.value".
//	source - Sending agent.
//	round - Round stamp; zero for messages outside any round.
//	fields - Payload fields. Later fields with the same name win.
func New(typ string, source dcop.ID, round int, fields ...Field) *Message {
	m := &Message{typ: typ, source: source, round: round}
	for _, f := range fields {
		f(m)
	}
	return m
}

// Type returns the message type.
func (m *Message) Type() string { return m.typ }

// Source returns the sender.
func (m *Message) Source() dcop.ID { return m.source }

// Round returns the round stamp.
func (m *Message) Round() int { return m.round }

// Number returns a numeric field.
func (m *Message) Number(name string) (float64, bool) {
	v, ok := m.numbers[name]
	return v, ok
}

// Int returns a numeric field truncated to int.
func (m *Message) Int(name string) (int, bool) {
	v, ok := m.numbers[name]
	return int(v), ok
}

// Assignment returns a copy of an assignment field.
func (m *Message) Assignment(name string) (dcop.Assignment, bool) {
	a, ok := m.assignments[name]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Table returns a copy of a cost table field.
func (m *Message) Table(name string) (dcop.CostTable, bool) {
	t, ok := m.tables[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Fields returns the names of all payload fields, sorted.
func (m *Message) Fields() []string {
	names := make([]string, 0, len(m.numbers)+len(m.assignments)+len(m.tables))
	for k := range m.numbers {
		names = append(names, k)
	}
	for k := range m.assignments {
		names = append(names, k)
	}
	for k := range m.tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders the envelope for debug logs.
func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s from=%s round=%d", m.typ, m.source, m.round)
	for _, k := range m.Fields() {
		switch {
		case m.numbers != nil && hasKey(m.numbers, k):
			fmt.Fprintf(&b, " %s=%g", k, m.numbers[k])
		case m.assignments != nil && hasKey(m.assignments, k):
			fmt.Fprintf(&b, " %s=%v", k, m.assignments[k])
		default:
			fmt.Fprintf(&b, " %s=%v", k, m.tables[k])
		}
	}
	return b.String()
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}
