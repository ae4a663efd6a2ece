// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package video defines the contract with the external video-search
// collaborator and ships an HTTP client for it.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
)

// Provider is the narrow video contract consumed by the tool-calling adapter.
type Provider interface {
	// Search returns candidate educational videos for the query, best first.
	Search(ctx context.Context, query string) ([]datatypes.VideoRef, error)

	// Transcript fetches the transcript text for a video id. May be large;
	// callers are responsible for truncation.
	Transcript(ctx context.Context, videoID string) (string, error)
}

// HTTPClient talks to a video-search service over JSON/HTTP.
//
// Identical concurrent searches are coalesced with singleflight: a classroom
// of sessions asking for the same topic video produces one upstream call.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	inflight   singleflight.Group
}

// NewHTTPClient builds a client for the video service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Search implements Provider.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]datatypes.VideoRef, error) {
	v, err, shared := c.inflight.Do("search:"+query, func() (any, error) {
		return c.doSearch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Video search coalesced", "query", query)
	}
	return v.([]datatypes.VideoRef), nil
}

func (c *HTTPClient) doSearch(ctx context.Context, query string) ([]datatypes.VideoRef, error) {
	u := fmt.Sprintf("%s/v1/videos/search?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("video: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Video search failed", "error", err)
		return nil, fmt.Errorf("video: search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Videos []datatypes.VideoRef `json:"videos"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("video: decode response: %w", err)
	}
	return out.Videos, nil
}

// Transcript implements Provider.
func (c *HTTPClient) Transcript(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("video: empty video id")
	}
	u := fmt.Sprintf("%s/v1/videos/%s/transcript", c.baseURL, url.PathEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("video: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("video: transcript fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("video: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("video: decode transcript: %w", err)
	}
	return out.Transcript, nil
}
