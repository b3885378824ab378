// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the shared data model for the relay services.
//
// A session is identified by an opaque token (UUID v4) that correlates the
// live websocket connection, the persisted session document, and entries on
// both stream channels. Messages are immutable once created and only ever
// appended to a session's message list.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Message sources. The source decides which role prefix is stored with the
// message text, so the persisted list doubles as the inference prompt.
const (
	SourceHuman = "human"
	SourceBot   = "bot"

	HumanPrefix = "Human: "
	BotPrefix   = "Bot: "
)

const (
	// MaxMessageBytes is the maximum size of a single inbound message.
	// Checked in bytes, not runes, to bound memory use.
	MaxMessageBytes = 32 * 1024

	// MaxNameLength bounds the display name on session creation.
	MaxNameLength = 128
)

// chatValidate is the validator instance for relay datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// "max" counts runes; register a byte-length validator so oversized
	// multi-byte payloads are still rejected.
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageBytes on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// Message is one immutable conversation entry.
//
// # Fields
//
//   - ID: Unique identifier assigned at creation (UUID v4).
//   - Msg: Message text. Persisted copies carry the "Human: " or "Bot: "
//     role prefix.
//   - Timestamp: Creation time, RFC 3339 with sub-second precision.
type Message struct {
	ID        string `json:"id"`
	Msg       string `json:"msg"`
	Timestamp string `json:"timestamp"`
}

// NewMessage creates a Message with a fresh id and timestamp.
func NewMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Msg:       text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ChatSession is the persisted conversation document, stored in the session
// cache under the token as key.
//
// # Fields
//
//   - Token: Opaque session token. Sole correlation key across the
//     connection registry, the session cache, and both stream channels.
//   - Name: Display name given at token issuance. Empty for documents
//     revived after their TTL lapsed mid-conversation.
//   - SessionStart: Creation time, RFC 3339.
//   - Messages: Append-ordered conversation history. The n-th human message
//     always precedes the bot reply it produced.
type ChatSession struct {
	Token        string    `json:"token"`
	Name         string    `json:"name"`
	SessionStart string    `json:"session_start"`
	Messages     []Message `json:"messages"`
}

// NewChatSession creates an empty session document for a freshly issued
// token.
func NewChatSession(token, name string) ChatSession {
	return ChatSession{
		Token:        token,
		Name:         name,
		SessionStart: time.Now().UTC().Format(time.RFC3339Nano),
		Messages:     []Message{},
	}
}

// LastMessages returns the trailing n messages of the session, or fewer when
// the history is shorter. The returned slice aliases the document.
func (s ChatSession) LastMessages(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// tokenRequest backs ValidateName with validator tags.
type tokenRequest struct {
	Name string `validate:"required,min=1,max=128"`
}

// ValidateName checks a session display name at the token-issuance boundary.
func ValidateName(name string) error {
	return chatValidate.Struct(tokenRequest{Name: name})
}

// messageFrame backs ValidateMessageText with validator tags.
type messageFrame struct {
	Text string `validate:"required,maxbytes"`
}

// ValidateMessageText checks an inbound websocket text frame before it is
// appended to the inbound channel.
func ValidateMessageText(text string) error {
	return chatValidate.Struct(messageFrame{Text: text})
}
