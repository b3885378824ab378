// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package streams wraps the durable append-only log the relay runs on.
//
// Two named channels exist: an inbound channel carrying client messages to
// the worker, and an outbound channel carrying replies back. Each entry pairs
// exactly one session token with one message text. There is no read cursor:
// consumers always read from the beginning of the channel and shrink the
// unread set by acknowledging (deleting) fully processed entries. An entry
// read but never acknowledged is re-delivered on the next read, so consumers
// must tolerate duplicates.
package streams

import (
	"context"
	"time"
)

// Entry is one stream record: a single token/text pair plus the id the
// substrate assigned on append. Ids are opaque and strictly increasing per
// channel.
type Entry struct {
	ID    string
	Token string
	Text  string
}

// Producer appends entries to a named channel.
type Producer interface {
	// Add appends a token/text pair and returns the generated entry id.
	// Appends are unconditional; nothing is ever overwritten.
	Add(ctx context.Context, channel, token, text string) (string, error)
}

// Consumer reads and acknowledges entries on a named channel.
type Consumer interface {
	// Consume returns up to count unacknowledged entries, oldest first.
	// block > 0 waits that long for an entry when the channel is empty;
	// block == 0 waits indefinitely; block < 0 returns immediately.
	// An empty result with a nil error means the wait timed out.
	Consume(ctx context.Context, channel string, block time.Duration, count int64) ([]Entry, error)

	// Ack permanently removes a processed entry. Acknowledging an id that
	// no longer exists is a no-op, not an error.
	Ack(ctx context.Context, channel, id string) error
}

// Broker is the full stream capability used by the worker, which both
// consumes the inbound channel and produces to the outbound one.
type Broker interface {
	Producer
	Consumer
}
