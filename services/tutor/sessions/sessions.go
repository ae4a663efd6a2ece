// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessions serializes turns per session and bounds the bookkeeping.
//
// The dialogue engine is not reentrant for a single session: two concurrent
// turns would race on the conversation state's attempt counter and practice
// flags. This package provides a per-session lock plus a per-session rate
// limiter, with a background sweeper that drops idle sessions so the
// registry cannot grow without bound. Unlimited distinct sessions can hold
// their locks concurrently.
package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for deterministic sweeper tests.
type Clock interface {
	Now() time.Time
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }

// Config tunes the registry.
type Config struct {
	// IdleTTL is how long a session may sit unused before the sweeper
	// removes its bookkeeping. Zero defaults to 30 minutes.
	IdleTTL time.Duration

	// TurnsPerMinute caps the turn rate per session. Zero disables.
	TurnsPerMinute int

	// Clock defaults to the system clock.
	Clock Clock
}

// Registry tracks one lock and one limiter per live session.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	cfg      Config
}

type session struct {
	turnMu     sync.Mutex
	limiter    *rate.Limiter
	lastActive time.Time
	refs       int
}

// NewRegistry builds a registry from cfg, applying defaults.
func NewRegistry(cfg Config) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Registry{
		sessions: make(map[string]*session),
		cfg:      cfg,
	}
}

// Acquire blocks until this goroutine holds the session's turn lock, then
// returns the release function. Callers must release exactly once.
func (r *Registry) Acquire(sessionID string) (release func()) {
	s := r.checkout(sessionID)
	s.turnMu.Lock()
	return func() {
		s.turnMu.Unlock()
		r.checkin(sessionID)
	}
}

// Allow reports whether the session is within its turn rate budget. Always
// true when rate limiting is disabled.
func (r *Registry) Allow(sessionID string) bool {
	if r.cfg.TurnsPerMinute <= 0 {
		return true
	}
	s := r.checkout(sessionID)
	defer r.checkin(sessionID)
	return s.limiter.Allow()
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle, unreferenced sessions and returns how many went.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Clock.Now().Add(-r.cfg.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.refs == 0 && s.lastActive.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					slog.Debug("Swept idle sessions", "removed", n)
				}
			}
		}
	}()
}

// checkout fetches or creates the session entry and pins it against sweeping.
func (r *Registry) checkout(sessionID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		s = &session{}
		if r.cfg.TurnsPerMinute > 0 {
			perSecond := rate.Limit(float64(r.cfg.TurnsPerMinute) / 60.0)
			s.limiter = rate.NewLimiter(perSecond, r.cfg.TurnsPerMinute)
		}
		r.sessions[sessionID] = s
	}
	s.refs++
	s.lastActive = r.cfg.Clock.Now()
	return s
}

func (r *Registry) checkin(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok && s.refs > 0 {
		s.refs--
		s.lastActive = r.cfg.Clock.Now()
	}
}
