// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the edge relay.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	relaySubsystem   = "relay"
)

// RelayMetrics holds all Prometheus metrics for the edge relay.
//
// # Fields
//
//   - ActiveConnections: Gauge of currently registered websocket clients.
//   - MessagesForwardedTotal: Counter of client frames appended to the
//     inbound channel.
//   - RepliesDeliveredTotal: Counter of outbound entries delivered to a
//     live connection and acknowledged.
//   - DeliveryErrorsTotal: Counter of failed websocket writes during
//     dispatch; the entry stays on the channel.
//   - TokenRequestsTotal: Counter of token issuance requests by status.
type RelayMetrics struct {
	ActiveConnections      prometheus.Gauge
	MessagesForwardedTotal prometheus.Counter
	RepliesDeliveredTotal  prometheus.Counter
	DeliveryErrorsTotal    prometheus.Counter
	TokenRequestsTotal     *prometheus.CounterVec
}

var (
	defaultMetrics *RelayMetrics
	initOnce       sync.Once
)

// InitMetrics registers the relay metrics once and returns the shared
// instance. Safe to call from multiple packages.
func InitMetrics() *RelayMetrics {
	initOnce.Do(func() {
		defaultMetrics = &RelayMetrics{
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "active_connections",
				Help:      "Currently registered websocket clients.",
			}),
			MessagesForwardedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "messages_forwarded_total",
				Help:      "Client frames appended to the inbound channel.",
			}),
			RepliesDeliveredTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "replies_delivered_total",
				Help:      "Outbound entries delivered and acknowledged.",
			}),
			DeliveryErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "delivery_errors_total",
				Help:      "Failed websocket writes during dispatch.",
			}),
			TokenRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "token_requests_total",
				Help:      "Token issuance requests by status.",
			}, []string{"status"}),
		}
	})
	return defaultMetrics
}
