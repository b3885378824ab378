// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package connections tracks live websocket clients by session token so the
// outbound dispatcher can deliver replies to the right connection.
package connections

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Sender is the delivery capability the dispatcher needs from a connection.
type Sender interface {
	SendText(text string) error
}

// Manager is the connection registry. One entry per live session token.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]Sender
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{conns: make(map[string]Sender)}
}

// Register binds a token to a connection. A reconnect with the same token
// replaces the previous binding; the old connection stops receiving.
func (m *Manager) Register(token string, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[token] = s
}

// Unregister removes the binding, but only if it still points at s. A stale
// disconnect must not evict the replacement connection of a reconnect.
func (m *Manager) Unregister(token string, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.conns[token]; ok && current == s {
		delete(m.conns, token)
	}
}

// Get returns the live connection for a token, if any.
func (m *Manager) Get(token string) (Sender, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.conns[token]
	return s, ok
}

// Len reports the number of live connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// WSConn adapts a gorilla websocket connection to Sender. gorilla permits
// only one concurrent writer per connection, so writes are serialized here.
type WSConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewWSConn wraps an upgraded websocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// SendText writes one UTF-8 text frame.
func (c *WSConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}
