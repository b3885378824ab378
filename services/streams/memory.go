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
	"fmt"
	"sync"
	"time"
)

// memoryPollInterval paces blocking reads against the in-memory broker.
const memoryPollInterval = 5 * time.Millisecond

// MemoryBroker is an in-process Broker with the same re-read-from-zero,
// delete-as-ack semantics as the Redis implementation. Used by tests and
// single-process development runs.
type MemoryBroker struct {
	mu       sync.Mutex
	seq      int64
	channels map[string][]Entry
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{channels: make(map[string][]Entry)}
}

// Add appends an entry and returns its generated id.
func (b *MemoryBroker) Add(ctx context.Context, channel, token, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	b.channels[channel] = append(b.channels[channel], Entry{ID: id, Token: token, Text: text})
	return id, nil
}

// Consume returns up to count unacknowledged entries from the head of the
// channel, polling until the block duration lapses when it is empty.
func (b *MemoryBroker) Consume(ctx context.Context, channel string, block time.Duration, count int64) ([]Entry, error) {
	var deadline time.Time
	if block > 0 {
		deadline = time.Now().Add(block)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.mu.Lock()
		pending := b.channels[channel]
		if len(pending) > 0 {
			n := len(pending)
			if count > 0 && int64(n) > count {
				n = int(count)
			}
			entries := make([]Entry, n)
			copy(entries, pending[:n])
			b.mu.Unlock()
			return entries, nil
		}
		b.mu.Unlock()

		if block < 0 {
			return nil, nil
		}
		if block > 0 && !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}

// Ack removes the entry with the given id. Unknown ids are a no-op.
func (b *MemoryBroker) Ack(ctx context.Context, channel, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.channels[channel]
	for i, entry := range pending {
		if entry.ID == id {
			b.channels[channel] = append(pending[:i:i], pending[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports the number of unacknowledged entries on a channel.
func (b *MemoryBroker) Len(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}
