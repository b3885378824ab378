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
	"sync"
	"time"

	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
)

type memoryRecord struct {
	session   datatypes.ChatSession
	expiresAt time.Time
}

// MemoryStore is an in-process Store with the same TTL-from-last-write and
// revive-on-append semantics as the Redis implementation. Used by tests and
// single-process development runs.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memoryRecord),
	}
}

// SetClock replaces the store's time source. Test hook for expiry behavior.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create persists an empty session document and arms its TTL.
func (s *MemoryStore) Create(ctx context.Context, token, name string) (datatypes.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.ChatSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session := datatypes.NewChatSession(token, name)
	s.sessions[token] = &memoryRecord{session: session, expiresAt: s.now().Add(s.ttl)}
	return session, nil
}

// History returns a copy of the session document.
func (s *MemoryStore) History(ctx context.Context, token string) (datatypes.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.ChatSession{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.live(token)
	if record == nil {
		return datatypes.ChatSession{}, ErrSessionNotFound
	}
	session := record.session
	session.Messages = append([]datatypes.Message(nil), record.session.Messages...)
	return session, nil
}

// Append tags and appends the message under the store lock, refreshing the
// TTL. Expired documents are revived bare.
func (s *MemoryStore) Append(ctx context.Context, token, source string, msg datatypes.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tagged, err := tagSource(source, msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.live(token)
	if record == nil {
		record = &memoryRecord{session: datatypes.NewChatSession(token, "")}
		s.sessions[token] = record
	}
	record.session.Messages = append(record.session.Messages, tagged)
	record.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Delete drops the session document.
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// live returns the record for token if it exists and has not expired,
// dropping it otherwise. Caller must hold the lock.
func (s *MemoryStore) live(token string) *memoryRecord {
	record, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if s.now().After(record.expiresAt) {
		delete(s.sessions, token)
		return nil
	}
	return record
}
