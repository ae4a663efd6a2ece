// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/store"
)

const (
	mistakesKeyPrefix = "tutor:mistakes:"
	masteryKeyPrefix  = "tutor:mastery:"

	mistakesTTL = 90 * 24 * time.Hour
	masteryTTL  = 30 * 24 * time.Hour

	maxRememberedTopics = 20
)

// loadStruggles returns the topics this student previously got practice
// questions wrong on. A nil or failing store yields an empty slice; memory
// is an enrichment, never a dependency.
func (e *Engine) loadStruggles(ctx context.Context, studentID string) []string {
	if e.memory == nil || studentID == "" {
		return nil
	}
	raw, err := e.memory.Get(ctx, mistakesKeyPrefix+studentID)
	if err != nil {
		if err != store.ErrNotFound {
			slog.Warn("student memory read failed", "error", err)
		}
		return nil
	}
	var topics []string
	if err := json.Unmarshal([]byte(raw), &topics); err != nil {
		return nil
	}
	return topics
}

// recordMistake appends a topic to the student's struggle list. Best effort.
func (e *Engine) recordMistake(ctx context.Context, studentID, topic string) {
	e.appendTopic(ctx, mistakesKeyPrefix+studentID, studentID, topic, mistakesTTL)
}

// recordMastery appends a topic to the student's mastered list. Best effort.
func (e *Engine) recordMastery(ctx context.Context, studentID, topic string) {
	e.appendTopic(ctx, masteryKeyPrefix+studentID, studentID, topic, masteryTTL)
}

func (e *Engine) appendTopic(ctx context.Context, key, studentID, topic string, ttl time.Duration) {
	if e.memory == nil || studentID == "" || topic == "" {
		return
	}
	var topics []string
	if raw, err := e.memory.Get(ctx, key); err == nil {
		_ = json.Unmarshal([]byte(raw), &topics)
	}
	for _, t := range topics {
		if t == topic {
			return
		}
	}
	topics = append(topics, topic)
	if len(topics) > maxRememberedTopics {
		topics = topics[len(topics)-maxRememberedTopics:]
	}
	raw, err := json.Marshal(topics)
	if err != nil {
		return
	}
	if err := e.memory.Set(ctx, key, string(raw), ttl); err != nil {
		slog.Warn("student memory write failed", "error", err)
	}
}
