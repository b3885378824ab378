// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHFInferenceClient_Generate(t *testing.T) {
	var captured hfRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]hfResult{{GeneratedText: "Hi Human: there"}})
	}))
	defer server.Close()

	client, err := NewHFInferenceClient(server.URL, "secret")
	require.NoError(t, err)

	params := GenerationParams{
		MaxNewTokens:   IntPtr(128),
		Temperature:    Float32Ptr(1.0),
		TopP:           Float32Ptr(0.9),
		ReturnFullText: BoolPtr(false),
	}
	text, err := client.Generate(context.Background(), "Human: hello Bot:", params)
	require.NoError(t, err)
	assert.Equal(t, "Hi Human: there", text)

	assert.Equal(t, "Human: hello Bot:", captured.Inputs)
	require.NotNil(t, captured.Parameters.MaxNewTokens)
	assert.Equal(t, 128, *captured.Parameters.MaxNewTokens)
	require.NotNil(t, captured.Parameters.ReturnFullText)
	assert.False(t, *captured.Parameters.ReturnFullText)
}

func TestHFInferenceClient_Generate_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewHFInferenceClient(server.URL, "")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt", GenerationParams{})
	assert.ErrorIs(t, err, ErrInference)
}

func TestHFInferenceClient_Generate_EmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client, err := NewHFInferenceClient(server.URL, "")
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt", GenerationParams{})
	assert.ErrorIs(t, err, ErrInference)
}

func TestNewHFInferenceClient_RequiresURL(t *testing.T) {
	_, err := NewHFInferenceClient("", "")
	assert.Error(t, err)
}
