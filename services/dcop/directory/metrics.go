// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Message Routing
// =============================================================================

var (
	// messagesSent counts every Send, delivered or not.
	// Labels: type (protocol message type)
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dcop",
		Subsystem: "directory",
		Name:      "messages_sent_total",
		Help:      "Messages handed to the directory, by type",
	}, []string{"type"})

	// messagesDelivered counts messages handed to a registered endpoint.
	messagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dcop",
		Subsystem: "directory",
		Name:      "messages_delivered_total",
		Help:      "Messages delivered to a registered endpoint",
	})

	// messagesDropped counts messages addressed to an unknown identity.
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dcop",
		Subsystem: "directory",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped because the recipient was not registered",
	})

	// registrations tracks the number of live endpoints across directories.
	registrations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dcop",
		Subsystem: "directory",
		Name:      "registered_endpoints",
		Help:      "Endpoints currently registered",
	})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// recordSend records one routing decision.
//
// Inputs:
//
//	msgType - The message type.
//	delivered - False when the recipient was unknown.
func recordSend(msgType string, delivered bool) {
	messagesSent.WithLabelValues(msgType).Inc()
	if delivered {
		messagesDelivered.Inc()
	} else {
		messagesDropped.Inc()
	}
}

// recordRegistrations adjusts the endpoint gauge by delta.
func recordRegistrations(delta int) {
	registrations.Add(float64(delta))
}
