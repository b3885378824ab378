// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on Redis Streams (XADD / XREAD / XDEL).
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing Redis client. The caller owns the client's
// lifecycle.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Add appends a single token/text pair via XADD with an auto-generated id.
func (b *RedisBroker) Add(ctx context.Context, channel, token, text string) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: channel,
		Values: map[string]interface{}{token: text},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", ErrTransport, channel, err)
	}
	slog.Debug("appended entry to stream", "channel", channel, "entryId", id)
	return id, nil
}

// Consume reads from the start of the stream's unacknowledged window.
//
// The read always begins at id 0-0: there is no persisted cursor, and the
// effective unread set shrinks only through Ack. XREAD blocks only when the
// channel holds no entries at all, so callers that skip entries (the
// dispatcher) must pace their own polling.
func (b *RedisBroker) Consume(ctx context.Context, channel string, block time.Duration, count int64) ([]Entry, error) {
	args := &redis.XReadArgs{
		Streams: []string{channel, "0-0"},
		Count:   count,
		Block:   block,
	}
	if block < 0 {
		// Negative means "do not block"; go-redis omits BLOCK for
		// negative values.
		args.Block = -1
	}

	result, err := b.client.XRead(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: xread %s: %v", ErrTransport, channel, err)
	}

	var entries []Entry
	for _, stream := range result {
		for _, msg := range stream.Messages {
			entry, err := entryFromValues(msg.ID, msg.Values)
			if err != nil {
				// One bad entry must not halt the stream. Leave
				// it unacknowledged and move on.
				slog.Warn("skipping malformed stream entry",
					"channel", channel, "entryId", msg.ID, "error", err)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Ack deletes the entry via XDEL. Deleting an already-deleted id returns a
// zero count from Redis, which is treated as success.
func (b *RedisBroker) Ack(ctx context.Context, channel, id string) error {
	if err := b.client.XDel(ctx, channel, id).Err(); err != nil {
		return fmt.Errorf("%w: xdel %s %s: %v", ErrTransport, channel, id, err)
	}
	return nil
}

// entryFromValues converts a raw field mapping into the typed single
// token/text pair the relay protocol requires.
func entryFromValues(id string, values map[string]interface{}) (Entry, error) {
	if len(values) != 1 {
		return Entry{}, fmt.Errorf("%w: %d fields", ErrMalformedEntry, len(values))
	}
	for token, raw := range values {
		text, ok := raw.(string)
		if !ok {
			return Entry{}, fmt.Errorf("%w: non-string payload", ErrMalformedEntry)
		}
		return Entry{ID: id, Token: token, Text: text}, nil
	}
	return Entry{}, ErrMalformedEntry
}
