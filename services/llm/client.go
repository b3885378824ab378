// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the external text-generation backends the worker
// calls. The backend is a black box: prompt in, text out, may fail or time
// out. Callers own retry policy and prompt truncation.
package llm

import (
	"context"
	"errors"
)

// ErrInference is wrapped by every backend failure so callers can treat
// "external call failed" uniformly regardless of backend.
var ErrInference = errors.New("inference backend failure")

// GenerationParams are the sampling knobs passed through to the backend.
// Nil fields use the backend's defaults.
type GenerationParams struct {
	MaxNewTokens *int     `json:"max_new_tokens"`
	Temperature  *float32 `json:"temperature"`
	TopP         *float32 `json:"top_p"`

	// ReturnFullText asks the backend not to echo the prompt back in
	// front of the generated continuation.
	ReturnFullText *bool `json:"return_full_text"`
}

// LLMClient defines the standard interface for any generation backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Helpers for building literal GenerationParams.

func IntPtr(v int) *int             { return &v }
func Float32Ptr(v float32) *float32 { return &v }
func BoolPtr(v bool) *bool          { return &v }
