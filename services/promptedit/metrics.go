// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package promptedit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the prompt edit pipeline.
//
// Description:
//
//	Counters and histograms for submissions and stage executions.
//	Naming convention: kodiak_promptedit_<metric>_<unit>.
var (
	// submitTotal tracks prompt submissions by provider and result.
	//
	// Labels:
	//   - provider: The LLM backend name (mock, openai, anthropic, ollama)
	//   - result: ok, provider_error, or rejected
	submitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiak_promptedit_submits_total",
		Help: "Total prompt submissions by provider and result",
	}, []string{"provider", "result"})

	// stageTotal tracks stage executions by stage and result.
	//
	// Labels:
	//   - stage: preview, validate, format, apply, or test
	//   - result: ok or error
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kodiak_promptedit_stage_total",
		Help: "Total pipeline stage executions by stage and result",
	}, []string{"stage", "result"})

	// stageDuration tracks stage execution latency.
	//
	// Buckets span tool subprocess latencies: fast in-process stages land
	// under 100ms, external formatters and test runs take seconds.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kodiak_promptedit_stage_duration_seconds",
		Help:    "Pipeline stage execution duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"stage"})
)

// observeStage records one stage execution.
func observeStage(stage string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	stageTotal.WithLabelValues(stage, result).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
