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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "worker",
		Name:      "entries_processed_total",
		Help:      "Inbound entries fully processed and acknowledged.",
	})

	workerAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "worker",
		Name:      "entries_abandoned_total",
		Help:      "Inbound entries dropped after exhausting delivery attempts.",
	})

	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "worker",
		Name:      "inference_duration_seconds",
		Help:      "Wall time of a single model generation call.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	inferenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "worker",
		Name:      "inference_failures_total",
		Help:      "Model generation calls that returned an error.",
	})
)

func observeInference(elapsed time.Duration, err error) {
	inferenceDuration.Observe(elapsed.Seconds())
	if err != nil {
		inferenceFailuresTotal.Inc()
	}
}
