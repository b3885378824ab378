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
	"log/slog"
	"strings"
	"time"

	"github.com/jinterlante1206/AleutianRelay/services/cache"
	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
	"github.com/jinterlante1206/AleutianRelay/services/llm"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

// errorBackoff spaces consume retries when the stream is unreachable.
const errorBackoff = time.Second

// failureReply is published on the outbound channel when an entry exhausts
// its delivery attempts, so the client is not left waiting forever.
const failureReply = "Sorry, I could not process that message. Please try again."

// humanTurnMarker starts a human turn inside a generation. Anything the
// model produces past this point is it speaking for the user, and is cut.
const humanTurnMarker = "Human:"

// LoopConfig carries the tunables of one worker loop.
type LoopConfig struct {
	InboundChannel  string
	OutboundChannel string

	// Block bounds each blocking read so the loop can observe shutdown.
	Block time.Duration

	// MaxDeliveries caps processing attempts per entry before the loop
	// gives up and publishes failureReply.
	MaxDeliveries int

	// ContextWindow is how many trailing messages feed the prompt.
	ContextWindow int

	Params llm.GenerationParams
}

// WorkerLoop drains the inbound channel one entry at a time:
// fetch, contextualize, infer, persist, acknowledge.
//
// The loop is sequential; run several instances for parallelism. Because
// acknowledgement is deletion with no claim step, two loops can race to the
// same entry and both process it. That at-least-once behavior is accepted:
// every step tolerates duplicates, at worst the session gains a repeated
// reply.
//
// Not safe for concurrent use; each goroutine gets its own instance.
type WorkerLoop struct {
	broker streams.Broker
	store  cache.Store
	model  llm.LLMClient
	cfg    LoopConfig

	// deliveries counts processing attempts per entry id. Local to this
	// loop: a redelivery picked up by another process starts a fresh
	// count there, so the global bound is attempts × processes.
	deliveries map[string]int
}

// NewWorkerLoop wires a loop against its collaborators.
func NewWorkerLoop(broker streams.Broker, store cache.Store, model llm.LLMClient, cfg LoopConfig) *WorkerLoop {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 4
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	return &WorkerLoop{
		broker:     broker,
		store:      store,
		model:      model,
		cfg:        cfg,
		deliveries: make(map[string]int),
	}
}

// Run consumes the inbound channel until the context is cancelled. Errors in
// per-message processing are logged and never stop the loop: the failed
// entry stays unacknowledged and is re-delivered.
func (w *WorkerLoop) Run(ctx context.Context) error {
	slog.Info("stream consumer started", "channel", w.cfg.InboundChannel)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stream consumer stopping")
			return ctx.Err()
		default:
		}

		entries, err := w.broker.Consume(ctx, w.cfg.InboundChannel, w.cfg.Block, 1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to read inbound channel", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, entry := range entries {
			if err := w.ProcessEntry(ctx, entry); err != nil {
				slog.Error("failed to process inbound entry",
					"entryId", entry.ID, "token", entry.Token, "error", err)
			}
		}
	}
}

// ProcessEntry runs one entry through the full state machine. The entry is
// acknowledged only after the reply has been persisted and published; on any
// earlier failure it stays on the channel for redelivery.
func (w *WorkerLoop) ProcessEntry(ctx context.Context, entry streams.Entry) error {
	attempts := w.deliveries[entry.ID] + 1
	w.deliveries[entry.ID] = attempts
	if attempts > w.cfg.MaxDeliveries {
		return w.abandon(ctx, entry)
	}

	// Contextualizing: record the human turn, then rebuild the prompt
	// from the trailing window of the stored conversation.
	if err := w.store.Append(ctx, entry.Token, datatypes.SourceHuman, datatypes.NewMessage(entry.Text)); err != nil {
		return fmt.Errorf("append human message: %w", err)
	}
	prompt, err := w.buildPrompt(ctx, entry)
	if err != nil {
		return err
	}

	// Inferring: the single point of slow external I/O.
	start := time.Now()
	raw, err := w.model.Generate(ctx, prompt, w.cfg.Params)
	observeInference(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("generate reply (attempt %d/%d): %w", attempts, w.cfg.MaxDeliveries, err)
	}
	reply := truncateReply(raw)

	// Persisting: bot turn into the document, prefixed copy onto the
	// outbound channel under the same token.
	if err := w.store.Append(ctx, entry.Token, datatypes.SourceBot, datatypes.NewMessage(reply)); err != nil {
		return fmt.Errorf("append bot message: %w", err)
	}
	if _, err := w.broker.Add(ctx, w.cfg.OutboundChannel, entry.Token, datatypes.BotPrefix+reply); err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}

	// Acknowledging: only now does the entry leave the inbound channel.
	if err := w.broker.Ack(ctx, w.cfg.InboundChannel, entry.ID); err != nil {
		return fmt.Errorf("acknowledge entry: %w", err)
	}
	delete(w.deliveries, entry.ID)

	workerProcessedTotal.Inc()
	slog.Info("processed inbound entry", "entryId", entry.ID, "token", entry.Token)
	return nil
}

// buildPrompt joins the trailing context window and appends the bot turn
// marker the model should continue from.
func (w *WorkerLoop) buildPrompt(ctx context.Context, entry streams.Entry) (string, error) {
	session, err := w.store.History(ctx, entry.Token)
	if errors.Is(err, cache.ErrSessionNotFound) {
		// Conversation lost to expiry; continue with this turn only.
		return datatypes.HumanPrefix + entry.Text + " Bot:", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session history: %w", err)
	}

	window := session.LastMessages(w.cfg.ContextWindow)
	parts := make([]string, 0, len(window))
	for _, msg := range window {
		parts = append(parts, msg.Msg)
	}
	return strings.Join(parts, " ") + " Bot:", nil
}

// abandon gives up on a poison entry: publish an error reply so the client
// is not left hanging, then acknowledge so the entry stops looping.
func (w *WorkerLoop) abandon(ctx context.Context, entry streams.Entry) error {
	slog.Warn("abandoning entry after repeated failures",
		"entryId", entry.ID, "token", entry.Token, "maxDeliveries", w.cfg.MaxDeliveries)

	if _, err := w.broker.Add(ctx, w.cfg.OutboundChannel, entry.Token, datatypes.BotPrefix+failureReply); err != nil {
		return fmt.Errorf("publish failure reply: %w", err)
	}
	if err := w.broker.Ack(ctx, w.cfg.InboundChannel, entry.ID); err != nil {
		return fmt.Errorf("acknowledge abandoned entry: %w", err)
	}
	delete(w.deliveries, entry.ID)
	workerAbandonedTotal.Inc()
	return nil
}

// truncateReply cuts the generation at the first human-turn marker and trims
// the remainder, so the model cannot speak for the user.
func truncateReply(raw string) string {
	text, _, _ := strings.Cut(raw, humanTurnMarker)
	return strings.TrimSpace(strings.Trim(text, "\n"))
}
