// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists one conversation document per session token.
//
// Documents carry a time-to-live measured from the last write, so idle
// conversations expire on their own. Message appends are atomic against
// concurrent writers: the edge process appends human messages while the
// worker appends bot replies to the same document, and neither may lose the
// other's update. Both implementations therefore use an in-place array
// append, never read-modify-write.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
)

// Sentinel errors for session cache operations.
var (
	// ErrSessionNotFound is returned when a token never existed or its
	// document's TTL has lapsed. Callers treat this as "conversation
	// lost, start fresh", not as a failure.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTransport is returned when the backing store is unreachable.
	ErrTransport = errors.New("session store transport failure")

	// ErrUnknownSource is returned for a message source other than
	// human or bot.
	ErrUnknownSource = errors.New("unknown message source")
)

// Store is the session document capability used by the edge and the worker.
type Store interface {
	// Create persists an empty session document for a freshly issued
	// token and arms its TTL.
	Create(ctx context.Context, token, name string) (datatypes.ChatSession, error)

	// History returns the whole session document, or ErrSessionNotFound
	// when the token is unknown or expired.
	History(ctx context.Context, token string) (datatypes.ChatSession, error)

	// Append tags the message with its source prefix and atomically
	// appends it to the document's message list, refreshing the TTL. If
	// the document expired mid-conversation it is revived with an empty
	// history rather than failing.
	Append(ctx context.Context, token, source string, msg datatypes.Message) error

	// Delete drops the session document. Unknown tokens are a no-op.
	Delete(ctx context.Context, token string) error
}

// tagSource prefixes the message text with its role marker. The persisted
// text doubles as role-tagged context for the inference prompt.
func tagSource(source string, msg datatypes.Message) (datatypes.Message, error) {
	switch source {
	case datatypes.SourceHuman:
		msg.Msg = datatypes.HumanPrefix + msg.Msg
	case datatypes.SourceBot:
		msg.Msg = datatypes.BotPrefix + msg.Msg
	default:
		return datatypes.Message{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return msg, nil
}
