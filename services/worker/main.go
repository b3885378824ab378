// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jinterlante1206/AleutianRelay/pkg/config"
	"github.com/jinterlante1206/AleutianRelay/pkg/logging"
	"github.com/jinterlante1206/AleutianRelay/services/cache"
	"github.com/jinterlante1206/AleutianRelay/services/llm"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

// newLLMClient selects the inference backend from configuration.
func newLLMClient(cfg *config.Worker) (llm.LLMClient, error) {
	switch cfg.LLMBackend {
	case "huggingface":
		return llm.NewHFInferenceClient(cfg.ModelURL, cfg.HFToken)
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND_TYPE %q", cfg.LLMBackend)
	}
}

func main() {
	logging.Setup("worker")

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("failed to load worker config: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	model, err := newLLMClient(cfg)
	if err != nil {
		log.Fatalf("failed to setup the LLM backend: %v", err)
	}
	slog.Info("LLM backend ready", "backend", cfg.LLMBackend)

	broker := streams.NewRedisBroker(redisClient)
	store := cache.NewRedisStore(redisClient, cfg.SessionTTL)

	loopCfg := LoopConfig{
		InboundChannel:  cfg.InboundChannel,
		OutboundChannel: cfg.OutboundChannel,
		Block:           cfg.ConsumeBlock,
		MaxDeliveries:   cfg.MaxDeliveries,
		ContextWindow:   cfg.ContextWindow,
		Params: llm.GenerationParams{
			MaxNewTokens:   llm.IntPtr(cfg.MaxNewTokens),
			Temperature:    llm.Float32Ptr(cfg.Temperature),
			TopP:           llm.Float32Ptr(cfg.TopP),
			ReturnFullText: llm.BoolPtr(false),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("starting the worker metrics server", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server exited", "error", err)
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		loop := NewWorkerLoop(broker, store, model, loopCfg)
		group.Go(func() error {
			return loop.Run(groupCtx)
		})
	}
	slog.Info("worker loops running", "count", cfg.Workers,
		"inbound", cfg.InboundChannel, "outbound", cfg.OutboundChannel)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker loop exited", "error", err)
	}
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", "error", err)
	}
}
