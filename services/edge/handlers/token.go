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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jinterlante1206/AleutianRelay/services/cache"
	"github.com/jinterlante1206/AleutianRelay/services/chat/datatypes"
	"github.com/jinterlante1206/AleutianRelay/services/edge/observability"
)

// GenerateToken issues a fresh session token and creates the empty session
// document behind it.
func GenerateToken(store cache.Store, metrics *observability.RelayMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.Query("name"))
		if err := datatypes.ValidateName(name); err != nil {
			if metrics != nil {
				metrics.TokenRequestsTotal.WithLabelValues("invalid").Inc()
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"loc": "name", "msg": "Enter a valid name",
			})
			return
		}

		token := uuid.NewString()
		session, err := store.Create(c.Request.Context(), token, name)
		if err != nil {
			slog.Error("failed to create session document", "error", err)
			if metrics != nil {
				metrics.TokenRequestsTotal.WithLabelValues("error").Inc()
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		slog.Info("issued session token", "token", token, "name", name)
		if metrics != nil {
			metrics.TokenRequestsTotal.WithLabelValues("success").Inc()
		}
		c.JSON(http.StatusOK, session)
	}
}

// RefreshToken drops the session document so the client can start over with
// a new token.
func RefreshToken(store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"loc": "token", "msg": "Enter a valid token"})
			return
		}
		if err := store.Delete(c.Request.Context(), token); err != nil {
			slog.Error("failed to delete session document", "token", token, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh token"})
			return
		}
		c.JSON(http.StatusOK, nil)
	}
}

// GetSessionHistory returns the stored conversation document for a token.
func GetSessionHistory(store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		session, err := store.History(c.Request.Context(), token)
		if errors.Is(err, cache.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session expired or unknown"})
			return
		}
		if err != nil {
			slog.Error("failed to read session history", "token", token, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session history"})
			return
		}
		c.JSON(http.StatusOK, session)
	}
}
