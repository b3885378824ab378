// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads service configuration from environment variables.
//
// Both relay services (edge and worker) read their configuration here so the
// channel names, Redis endpoint, and session TTL stay in one place. Values
// default to the reference deployment (message_channel / response_channel,
// one hour TTL).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Edge holds configuration for the websocket edge server.
type Edge struct {
	Port            string        `env:"EDGE_PORT" envDefault:"3500"`
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	InboundChannel  string        `env:"INBOUND_CHANNEL" envDefault:"message_channel"`
	OutboundChannel string        `env:"OUTBOUND_CHANNEL" envDefault:"response_channel"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	// DispatchBlock bounds each blocking read of the outbound channel so the
	// dispatcher can observe shutdown between reads.
	DispatchBlock time.Duration `env:"DISPATCH_BLOCK" envDefault:"5s"`

	// OTELEndpoint enables OTLP trace export when set. Empty disables tracing.
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Worker holds configuration for the inference worker service.
type Worker struct {
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	InboundChannel  string        `env:"INBOUND_CHANNEL" envDefault:"message_channel"`
	OutboundChannel string        `env:"OUTBOUND_CHANNEL" envDefault:"response_channel"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	MetricsPort     string        `env:"WORKER_METRICS_PORT" envDefault:"9109"`

	// Workers is the number of concurrent consume loops in this process.
	Workers int `env:"WORKER_COUNT" envDefault:"1"`

	// ConsumeBlock bounds each blocking read of the inbound channel.
	ConsumeBlock time.Duration `env:"WORKER_CONSUME_BLOCK" envDefault:"5s"`

	// MaxDeliveries caps how often a single entry is attempted before the
	// worker gives up, publishes an error reply, and acknowledges the entry.
	MaxDeliveries int `env:"WORKER_MAX_DELIVERIES" envDefault:"3"`

	// ContextWindow is how many trailing messages feed the inference prompt.
	ContextWindow int `env:"WORKER_CONTEXT_WINDOW" envDefault:"4"`

	// LLMBackend selects the inference backend: huggingface or openai.
	LLMBackend string `env:"LLM_BACKEND_TYPE" envDefault:"huggingface"`

	ModelURL    string `env:"MODEL_URL"`
	HFToken     string `env:"HUGGINGFACE_INFERENCE_TOKEN"`
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	MaxNewTokens int     `env:"MODEL_MAX_NEW_TOKENS" envDefault:"128"`
	Temperature  float32 `env:"MODEL_TEMPERATURE" envDefault:"1.0"`
	TopP         float32 `env:"MODEL_TOP_P" envDefault:"0.9"`
}

// LoadEdge parses edge configuration from the environment.
func LoadEdge() (*Edge, error) {
	cfg := &Edge{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse edge config: %w", err)
	}
	return cfg, nil
}

// LoadWorker parses worker configuration from the environment.
func LoadWorker() (*Worker, error) {
	cfg := &Worker{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse worker config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 1
	}
	return cfg, nil
}
