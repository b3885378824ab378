// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
)

func TestMemoryStore_CreateAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	created, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.Name)
	assert.Empty(t, created.Messages)

	history, err := store.History(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, created.Token, history.Token)
}

func TestMemoryStore_HistoryUnknownToken(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	_, err := store.History(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_AppendPrefixesAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)

	// Three round trips: human append then bot append, in call order.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, "tok-1", datatypes.SourceHuman, datatypes.NewMessage("question")))
		require.NoError(t, store.Append(ctx, "tok-1", datatypes.SourceBot, datatypes.NewMessage("answer")))
	}

	history, err := store.History(ctx, "tok-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 6)
	for i, msg := range history.Messages {
		if i%2 == 0 {
			assert.True(t, strings.HasPrefix(msg.Msg, datatypes.HumanPrefix), "message %d: %q", i, msg.Msg)
		} else {
			assert.True(t, strings.HasPrefix(msg.Msg, datatypes.BotPrefix), "message %d: %q", i, msg.Msg)
		}
	}
}

func TestMemoryStore_AppendRejectsUnknownSource(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	err := store.Append(context.Background(), "tok", "system", datatypes.NewMessage("x"))
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestMemoryStore_ExpiryReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	current := time.Now()
	var mu sync.Mutex
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)

	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	_, err = store.History(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_TTLRefreshedOnAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	current := time.Now()
	var mu sync.Mutex
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)

	// 40 minutes in, a write lands; 40 minutes later the document must
	// still be live because the TTL counts from the last write.
	mu.Lock()
	current = current.Add(40 * time.Minute)
	mu.Unlock()
	require.NoError(t, store.Append(ctx, "tok-1", datatypes.SourceHuman, datatypes.NewMessage("hi")))

	mu.Lock()
	current = current.Add(40 * time.Minute)
	mu.Unlock()

	_, err = store.History(ctx, "tok-1")
	assert.NoError(t, err)
}

func TestMemoryStore_AppendRevivesExpiredDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	current := time.Now()
	var mu sync.Mutex
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "tok-1", datatypes.SourceHuman, datatypes.NewMessage("hello")))

	mu.Lock()
	current = current.Add(2 * time.Hour)
	mu.Unlock()

	require.NoError(t, store.Append(ctx, "tok-1", datatypes.SourceHuman, datatypes.NewMessage("still there?")))

	history, err := store.History(ctx, "tok-1")
	require.NoError(t, err)
	assert.Empty(t, history.Name, "revived document starts bare")
	require.Len(t, history.Messages, 1)
	assert.Equal(t, datatypes.HumanPrefix+"still there?", history.Messages[0].Msg)
}

func TestMemoryStore_ConcurrentAppendsLoseNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Append(ctx, "tok-1", datatypes.SourceHuman, datatypes.NewMessage("h"))
		}()
		go func() {
			defer wg.Done()
			_ = store.Append(ctx, "tok-1", datatypes.SourceBot, datatypes.NewMessage("b"))
		}()
	}
	wg.Wait()

	history, err := store.History(ctx, "tok-1")
	require.NoError(t, err)
	assert.Len(t, history.Messages, 100)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	_, err := store.Create(ctx, "tok-1", "Ada")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "tok-1"))
	_, err = store.History(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.NoError(t, store.Delete(ctx, "unknown"))
}
