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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
)

// RedisStore implements Store on RedisJSON documents keyed by token.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl applies to every write.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Create persists an empty session document and arms its TTL.
func (s *RedisStore) Create(ctx context.Context, token, name string) (datatypes.ChatSession, error) {
	session := datatypes.NewChatSession(token, name)
	if err := s.client.JSONSet(ctx, token, "$", session).Err(); err != nil {
		return datatypes.ChatSession{}, fmt.Errorf("%w: json.set %s: %v", ErrTransport, token, err)
	}
	if err := s.client.Expire(ctx, token, s.ttl).Err(); err != nil {
		return datatypes.ChatSession{}, fmt.Errorf("%w: expire %s: %v", ErrTransport, token, err)
	}
	slog.Info("created session document", "token", token)
	return session, nil
}

// History reads the whole document back.
func (s *RedisStore) History(ctx context.Context, token string) (datatypes.ChatSession, error) {
	raw, err := s.client.JSONGet(ctx, token, "$").Result()
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return datatypes.ChatSession{}, ErrSessionNotFound
	}
	if err != nil {
		return datatypes.ChatSession{}, fmt.Errorf("%w: json.get %s: %v", ErrTransport, token, err)
	}

	// A "$" path query returns a one-element array.
	var docs []datatypes.ChatSession
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return datatypes.ChatSession{}, fmt.Errorf("decode session document %s: %w", token, err)
	}
	if len(docs) == 0 {
		return datatypes.ChatSession{}, ErrSessionNotFound
	}
	return docs[0], nil
}

// Append tags the message and array-appends it to the document, refreshing
// the TTL. Expired documents are revived with an empty history first.
func (s *RedisStore) Append(ctx context.Context, token, source string, msg datatypes.Message) error {
	tagged, err := tagSource(source, msg)
	if err != nil {
		return err
	}

	exists, err := s.client.Exists(ctx, token).Result()
	if err != nil {
		return fmt.Errorf("%w: exists %s: %v", ErrTransport, token, err)
	}
	if exists == 0 {
		// The document lapsed mid-conversation. Revive it bare so the
		// exchange continues with empty history.
		slog.Warn("session document expired, reviving", "token", token)
		if err := s.client.JSONSet(ctx, token, "$", datatypes.NewChatSession(token, "")).Err(); err != nil {
			return fmt.Errorf("%w: revive %s: %v", ErrTransport, token, err)
		}
	}

	// JSONArrAppend sends values verbatim, so the message is marshaled here.
	payload, err := json.Marshal(tagged)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", token, err)
	}
	if err := s.client.JSONArrAppend(ctx, token, "$.messages", string(payload)).Err(); err != nil {
		return fmt.Errorf("%w: json.arrappend %s: %v", ErrTransport, token, err)
	}
	if err := s.client.Expire(ctx, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrTransport, token, err)
	}
	return nil
}

// Delete drops the session document.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, token).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", ErrTransport, token, err)
	}
	return nil
}
