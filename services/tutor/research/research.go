// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package research defines the contract with the external web-research
// collaborator and ships an HTTP client for it.
//
// The collaborator returns already-synthesized prose; the dialogue engine
// still pushes that prose through the guardian pipeline like any other
// candidate reply.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
)

// Result is the research collaborator's synthesized answer.
type Result struct {
	// Reply is prose ready for sanitization and delivery.
	Reply string `json:"reply"`

	// Topic is the subject the collaborator settled on; the engine adopts
	// it as the conversation's anchor topic when non-empty.
	Topic string `json:"topic,omitempty"`

	// Sources cites the pages the reply was synthesized from.
	Sources []datatypes.SourceRef `json:"sources,omitempty"`

	// Video is an optional educational video the collaborator surfaced.
	// Subject to the same relevance gate as adapter-found videos.
	Video *datatypes.VideoRef `json:"video,omitempty"`
}

// Provider is the narrow research contract consumed by the engine.
type Provider interface {
	// Research runs a web search-and-synthesize pass for the query.
	Research(ctx context.Context, query, priorTopic string, history []datatypes.Message) (Result, error)
}

// HTTPClient talks to a research service over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds a client for the research service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
}

type researchRequest struct {
	Query      string               `json:"query"`
	PriorTopic string               `json:"prior_topic,omitempty"`
	History    []datatypes.Message  `json:"history,omitempty"`
}

// Research implements Provider.
func (c *HTTPClient) Research(ctx context.Context, query, priorTopic string, history []datatypes.Message) (Result, error) {
	body, err := json.Marshal(researchRequest{Query: query, PriorTopic: priorTopic, History: history})
	if err != nil {
		return Result{}, fmt.Errorf("research: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/research", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("research: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Research service call failed", "error", err)
		return Result{}, fmt.Errorf("research: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("research: unexpected status %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("research: decode response: %w", err)
	}
	if out.Reply == "" {
		return Result{}, fmt.Errorf("research: empty reply")
	}
	return out, nil
}
