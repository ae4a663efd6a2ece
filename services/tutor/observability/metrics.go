// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the tutor service.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe through Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"

const tutorSubsystem = "tutor"

// TurnMetrics holds the tutor service's Prometheus collectors. Initialize
// once at startup via NewTurnMetrics.
type TurnMetrics struct {
	// TurnsTotal counts processed turns.
	// Labels: branch (safety, insult, practice, research, teaching, ...),
	// status (ok, fallback).
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency by branch.
	TurnDurationSeconds *prometheus.HistogramVec

	// ModelRoundTripsTotal counts generation-provider calls per turn
	// outcome. Labels: count ("0", "1", "2").
	ModelRoundTripsTotal *prometheus.CounterVec

	// VideosTotal counts video attachment decisions.
	// Labels: decision (attached, dropped_irrelevant, none).
	VideosTotal *prometheus.CounterVec

	// EscalationStepsTotal counts escalation-ladder rungs served.
	// Labels: step (hint, decompose, explain, reveal).
	EscalationStepsTotal *prometheus.CounterVec

	// SanitizerRewritesTotal counts sanitizer stages that changed their
	// input. Labels: stage (robotic, markdown, latex, ...). A high rate on
	// one stage means the prompt is not holding the model to the house
	// style.
	SanitizerRewritesTotal *prometheus.CounterVec
}

// NewTurnMetrics registers the tutor collectors on the default registry.
func NewTurnMetrics() *TurnMetrics {
	return &TurnMetrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "turns_total",
			Help:      "Total turns processed by branch and status",
		}, []string{"branch", "status"}),

		TurnDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn processing latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"branch"}),

		ModelRoundTripsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "model_round_trips_total",
			Help:      "Turns by number of generation-provider calls made",
		}, []string{"count"}),

		VideosTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "videos_total",
			Help:      "Video attachment decisions",
		}, []string{"decision"}),

		EscalationStepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "escalation_steps_total",
			Help:      "Escalation ladder rungs served to students",
		}, []string{"step"}),

		SanitizerRewritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tutorSubsystem,
			Name:      "sanitizer_rewrites_total",
			Help:      "Sanitizer stages that changed their input",
		}, []string{"stage"}),
	}
}
