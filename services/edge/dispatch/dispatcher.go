// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch fans outbound replies out to live connections.
//
// One dispatcher runs per edge process. It reads the outbound channel,
// delivers every entry whose token has a registered connection, and
// acknowledges only delivered entries. Entries for tokens without a live
// connection here are left on the channel untouched: either another edge
// instance holds that connection, or the client disconnected and the reply
// simply goes unconsumed. This replaces a per-connection scan of the whole
// channel with a single reader per process.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jinterlante1206/AleutianRelay/services/edge/connections"
	"github.com/jinterlante1206/AleutianRelay/services/edge/observability"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

const (
	// batchSize bounds how many outbound entries one pass inspects.
	batchSize = 16

	// idlePause paces re-reads when a pass delivered nothing. The
	// consumer re-reads from the start of the channel, so skipped
	// entries come straight back and the blocking read does not pace us.
	idlePause = 250 * time.Millisecond

	// errorBackoff spaces retries when the stream is unreachable.
	errorBackoff = time.Second
)

// Dispatcher is the single outbound-channel reader of an edge process.
type Dispatcher struct {
	consumer streams.Consumer
	registry *connections.Manager
	channel  string
	block    time.Duration
	metrics  *observability.RelayMetrics
}

// New creates a dispatcher. metrics may be nil.
func New(consumer streams.Consumer, registry *connections.Manager, channel string,
	block time.Duration, metrics *observability.RelayMetrics) *Dispatcher {

	return &Dispatcher{
		consumer: consumer,
		registry: registry,
		channel:  channel,
		block:    block,
		metrics:  metrics,
	}
}

// Run consumes the outbound channel until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("outbound dispatcher started", "channel", d.channel)
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbound dispatcher stopping")
			return ctx.Err()
		default:
		}

		entries, err := d.consumer.Consume(ctx, d.channel, d.block, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to read outbound channel", "error", err)
			sleepCtx(ctx, errorBackoff)
			continue
		}

		if d.dispatch(ctx, entries) == 0 && len(entries) > 0 {
			// Everything pending belongs to other edge instances.
			sleepCtx(ctx, idlePause)
		}
	}
}

// dispatch delivers matching entries and returns how many were delivered.
func (d *Dispatcher) dispatch(ctx context.Context, entries []streams.Entry) int {
	delivered := 0
	for _, entry := range entries {
		conn, ok := d.registry.Get(entry.Token)
		if !ok {
			continue
		}

		if err := conn.SendText(entry.Text); err != nil {
			// Connection is likely torn down; leave the entry for a
			// reconnect or another instance.
			slog.Warn("failed to deliver reply", "entryId", entry.ID, "error", err)
			if d.metrics != nil {
				d.metrics.DeliveryErrorsTotal.Inc()
			}
			continue
		}

		if err := d.consumer.Ack(ctx, d.channel, entry.ID); err != nil {
			// Delivered but not deleted: the entry may be delivered
			// again. Duplicate delivery is the accepted trade-off.
			slog.Warn("failed to acknowledge delivered reply", "entryId", entry.ID, "error", err)
		}
		delivered++
		if d.metrics != nil {
			d.metrics.RepliesDeliveredTotal.Inc()
		}
		slog.Debug("delivered reply", "entryId", entry.ID)
	}
	return delivered
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
