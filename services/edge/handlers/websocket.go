// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
	"github.com/jinterlante1206/AleutianRelay/services/edge/connections"
	"github.com/jinterlante1206/AleutianRelay/services/edge/observability"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// sessionCookie is the fallback token carrier when the query parameter is
// absent.
const sessionCookie = "session"

// resolveToken extracts the session token from the token query parameter or
// the session cookie.
func resolveToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie
	}
	return ""
}

// HandleChatWebSocket runs the per-connection relay loop.
//
// Each inbound text frame is appended to the inbound channel keyed by the
// connection's token. Replies are delivered by the process-wide outbound
// dispatcher through the connection registry, so this handler only reads.
// A connection without a resolvable token is closed with a policy-violation
// code before any frame is exchanged.
func HandleChatWebSocket(producer streams.Producer, registry *connections.Manager,
	metrics *observability.RelayMetrics, inboundChannel string) gin.HandlerFunc {

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		token := resolveToken(c)
		if token == "" {
			slog.Warn("websocket connection without session token")
			closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing session token")
			_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			return
		}

		conn := connections.NewWSConn(ws)
		registry.Register(token, conn)
		defer registry.Unregister(token, conn)
		if metrics != nil {
			metrics.ActiveConnections.Inc()
			defer metrics.ActiveConnections.Dec()
		}
		slog.Info("websocket client connected", "token", token)

		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				slog.Info("websocket client disconnected", "token", token, "error", err.Error())
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			text := string(data)
			if err := datatypes.ValidateMessageText(text); err != nil {
				_ = conn.SendText("Error: message rejected, empty or too large")
				continue
			}

			entryID, err := producer.Add(c.Request.Context(), inboundChannel, token, text)
			if err != nil {
				slog.Error("failed to forward message to inbound channel",
					"token", token, "error", err)
				_ = conn.SendText("Error: message could not be queued, please retry")
				continue
			}
			if metrics != nil {
				metrics.MessagesForwardedTotal.Inc()
			}
			slog.Debug("forwarded client message", "token", token, "entryId", entryID)
		}
	}
}
