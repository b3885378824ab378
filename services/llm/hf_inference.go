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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HFInferenceClient calls the HuggingFace Inference API.
type HFInferenceClient struct {
	httpClient *http.Client
	url        string
	authToken  string
}

// NewHFInferenceClient creates a client for a hosted model endpoint.
func NewHFInferenceClient(modelURL, authToken string) (*HFInferenceClient, error) {
	if modelURL == "" {
		return nil, fmt.Errorf("MODEL_URL is required for the huggingface backend")
	}
	return &HFInferenceClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		url:        modelURL,
		authToken:  authToken,
	}, nil
}

// hfRequest is the Inference API payload shape.
type hfRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters GenerationParams `json:"parameters"`
}

// hfResult is one element of the Inference API response array.
type hfResult struct {
	GeneratedText string `json:"generated_text"`
}

// Generate posts the prompt and returns the raw generated continuation.
// Callers truncate at the human-turn marker themselves.
func (h *HFInferenceClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	body, err := json.Marshal(hfRequest{Inputs: prompt, Parameters: params})
	if err != nil {
		return "", fmt.Errorf("encode inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrInference, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrInference, resp.StatusCode, truncateForLog(raw))
	}

	var results []hfResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrInference, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: empty response array", ErrInference)
	}
	return results[0].GeneratedText, nil
}

// truncateForLog keeps backend error bodies short in wrapped errors.
func truncateForLog(raw []byte) string {
	const max = 256
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
