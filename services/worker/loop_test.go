// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianRelay/services/cache"
	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
	"github.com/jinterlante1206/AleutianRelay/services/llm"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

// scriptedLLM returns canned generations in order and records every prompt
// it was asked to complete.
type scriptedLLM struct {
	replies []string
	err     error
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.prompts) > len(s.replies) {
		return "", errors.New("script exhausted")
	}
	return s.replies[len(s.prompts)-1], nil
}

type loopFixture struct {
	broker *streams.MemoryBroker
	store  *cache.MemoryStore
	model  *scriptedLLM
	loop   *WorkerLoop
}

func newLoopFixture(t *testing.T, model *scriptedLLM, cfg LoopConfig) *loopFixture {
	t.Helper()
	if cfg.InboundChannel == "" {
		cfg.InboundChannel = "message_channel"
	}
	if cfg.OutboundChannel == "" {
		cfg.OutboundChannel = "response_channel"
	}
	broker := streams.NewMemoryBroker()
	store := cache.NewMemoryStore(time.Hour)
	return &loopFixture{
		broker: broker,
		store:  store,
		model:  model,
		loop:   NewWorkerLoop(broker, store, model, cfg),
	}
}

// enqueue puts one human message on the inbound channel and returns the entry
// as the loop would consume it.
func (f *loopFixture) enqueue(t *testing.T, token, text string) streams.Entry {
	t.Helper()
	ctx := context.Background()
	id, err := f.broker.Add(ctx, "message_channel", token, text)
	require.NoError(t, err)
	return streams.Entry{ID: id, Token: token, Text: text}
}

func TestProcessEntry_FullTurn(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{replies: []string{"Hi\n Human: there"}}
	f := newLoopFixture(t, model, LoopConfig{})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	entry := f.enqueue(t, "tok-a", "hello")

	require.NoError(t, f.loop.ProcessEntry(ctx, entry))

	// Prompt carried the role-tagged history plus the bot turn marker.
	require.Len(t, model.prompts, 1)
	assert.Equal(t, "Human: hello Bot:", model.prompts[0])

	// Generation was truncated at the human turn marker before use.
	session, err := f.store.History(ctx, "tok-a")
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "Human: hello", session.Messages[0].Msg)
	assert.Equal(t, "Bot: Hi", session.Messages[1].Msg)

	// Reply is on the outbound channel under the same token, prefixed.
	replies, err := f.broker.Consume(ctx, "response_channel", -1, 10)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "tok-a", replies[0].Token)
	assert.Equal(t, "Bot: Hi", replies[0].Text)

	// The inbound entry was acknowledged.
	assert.Zero(t, f.broker.Len("message_channel"))
}

func TestProcessEntry_AlternatingOrderAcrossTurns(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{replies: []string{"one", "two", "three"}}
	f := newLoopFixture(t, model, LoopConfig{})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		entry := f.enqueue(t, "tok-a", fmt.Sprintf("turn %d", i))
		require.NoError(t, f.loop.ProcessEntry(ctx, entry))
	}

	session, err := f.store.History(ctx, "tok-a")
	require.NoError(t, err)
	require.Len(t, session.Messages, 6)
	for i, msg := range session.Messages {
		if i%2 == 0 {
			assert.True(t, strings.HasPrefix(msg.Msg, datatypes.HumanPrefix), "message %d: %q", i, msg.Msg)
		} else {
			assert.True(t, strings.HasPrefix(msg.Msg, datatypes.BotPrefix), "message %d: %q", i, msg.Msg)
		}
	}
}

func TestProcessEntry_PromptUsesTrailingWindow(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{replies: []string{"ok"}}
	f := newLoopFixture(t, model, LoopConfig{ContextWindow: 4})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, f.store.Append(ctx, "tok-a", datatypes.SourceHuman,
			datatypes.NewMessage(fmt.Sprintf("old %d", i))))
	}

	entry := f.enqueue(t, "tok-a", "latest")
	require.NoError(t, f.loop.ProcessEntry(ctx, entry))

	require.Len(t, model.prompts, 1)
	assert.Equal(t, "Human: old 7 Human: old 8 Human: old 9 Human: latest Bot:",
		model.prompts[0])
}

func TestProcessEntry_ExpiredSessionStartsFresh(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{replies: []string{"welcome back"}}
	f := newLoopFixture(t, model, LoopConfig{})

	// No Create call: the token's document is gone.
	entry := f.enqueue(t, "tok-gone", "anyone there?")
	require.NoError(t, f.loop.ProcessEntry(ctx, entry))

	// The append revived a bare document and the turn completed.
	session, err := f.store.History(ctx, "tok-gone")
	require.NoError(t, err)
	assert.Empty(t, session.Name)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "Human: anyone there?", session.Messages[0].Msg)
}

func TestProcessEntry_InferenceFailureLeavesEntryUnacked(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{err: llm.ErrInference}
	f := newLoopFixture(t, model, LoopConfig{})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	entry := f.enqueue(t, "tok-a", "hello")

	err = f.loop.ProcessEntry(ctx, entry)
	require.ErrorIs(t, err, llm.ErrInference)

	// Entry stays on the inbound channel, nothing was published outbound.
	assert.Equal(t, 1, f.broker.Len("message_channel"))
	assert.Zero(t, f.broker.Len("response_channel"))
}

func TestProcessEntry_AbandonsAfterMaxDeliveries(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{err: llm.ErrInference}
	f := newLoopFixture(t, model, LoopConfig{MaxDeliveries: 3})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	entry := f.enqueue(t, "tok-a", "hello")

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, f.loop.ProcessEntry(ctx, entry), llm.ErrInference)
		assert.Equal(t, 1, f.broker.Len("message_channel"), "attempt %d", i+1)
	}

	// Fourth attempt gives up: error reply outbound, entry acknowledged.
	require.NoError(t, f.loop.ProcessEntry(ctx, entry))
	assert.Zero(t, f.broker.Len("message_channel"))

	replies, err := f.broker.Consume(ctx, "response_channel", -1, 10)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "tok-a", replies[0].Token)
	assert.Equal(t, datatypes.BotPrefix+failureReply, replies[0].Text)
}

func TestProcessEntry_DuplicateDeliveryCompletesBothTimes(t *testing.T) {
	ctx := context.Background()
	model := &scriptedLLM{replies: []string{"first", "second"}}
	f := newLoopFixture(t, model, LoopConfig{})

	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	entry := f.enqueue(t, "tok-a", "hello")

	// The same entry handed to the loop twice, as racing consumers would.
	require.NoError(t, f.loop.ProcessEntry(ctx, entry))
	require.NoError(t, f.loop.ProcessEntry(ctx, entry))

	// Both passes ran to completion; the second ack was a no-op.
	replies, err := f.broker.Consume(ctx, "response_channel", -1, 10)
	require.NoError(t, err)
	assert.Len(t, replies, 2)
	assert.Zero(t, f.broker.Len("message_channel"))
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	model := &scriptedLLM{replies: []string{"a", "b"}}
	f := newLoopFixture(t, model, LoopConfig{Block: 20 * time.Millisecond})

	ctx := context.Background()
	_, err := f.store.Create(ctx, "tok-a", "Ada")
	require.NoError(t, err)
	f.enqueue(t, "tok-a", "one")
	f.enqueue(t, "tok-a", "two")

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	err = f.loop.Run(runCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Zero(t, f.broker.Len("message_channel"))
	assert.Equal(t, 2, f.broker.Len("response_channel"))
}

func TestTruncateReply(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Hello there", "Hello there"},
		{"human turn cut", "Hello Human: and then", "Hello"},
		{"leading newlines", "\n\nHello\n", "Hello"},
		{"marker only", "Human: something", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, truncateReply(tc.raw))
		})
	}
}
