// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessions

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable Clock for sweeper tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAcquireSerializesPerSession(t *testing.T) {
	r := NewRegistry(Config{})

	release := r.Acquire("s1")

	// A second acquire of the same session must block until release.
	entered := make(chan struct{})
	go func() {
		rel := r.Acquire("s1")
		close(entered)
		rel()
	}()

	select {
	case <-entered:
		t.Fatal("second Acquire proceeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded after release")
	}
}

func TestAcquireDistinctSessionsDoNotBlock(t *testing.T) {
	r := NewRegistry(Config{})
	rel1 := r.Acquire("s1")
	defer rel1()

	done := make(chan struct{})
	go func() {
		rel2 := r.Acquire("s2")
		rel2()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct session blocked on another session's lock")
	}
}

func TestAllowRateLimits(t *testing.T) {
	r := NewRegistry(Config{TurnsPerMinute: 2})

	if !r.Allow("s1") {
		t.Fatal("first turn denied")
	}
	if !r.Allow("s1") {
		t.Fatal("second turn denied within burst")
	}
	if r.Allow("s1") {
		t.Fatal("third immediate turn allowed past the budget")
	}

	// Other sessions have their own budget.
	if !r.Allow("s2") {
		t.Fatal("fresh session denied")
	}
}

func TestAllowDisabledWhenZero(t *testing.T) {
	r := NewRegistry(Config{TurnsPerMinute: 0})
	for i := 0; i < 100; i++ {
		if !r.Allow("s1") {
			t.Fatal("rate limiting active despite being disabled")
		}
	}
	if r.Len() != 0 {
		t.Errorf("disabled limiter tracked sessions: Len() = %d", r.Len())
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(Config{IdleTTL: 10 * time.Minute, Clock: clock})

	r.Acquire("stale")()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	clock.Advance(5 * time.Minute)
	if removed := r.Sweep(); removed != 0 {
		t.Fatalf("Sweep removed %d sessions before the TTL", removed)
	}

	clock.Advance(6 * time.Minute)
	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d sessions, want 1", removed)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", r.Len())
	}
}

func TestSweepSkipsHeldSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(Config{IdleTTL: time.Minute, Clock: clock})

	release := r.Acquire("busy")
	clock.Advance(time.Hour)
	if removed := r.Sweep(); removed != 0 {
		t.Fatalf("Sweep removed a session whose lock is held")
	}

	release()
	clock.Advance(2 * time.Minute)
	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d sessions after release, want 1", removed)
	}
}

func TestAcquireAfterSweepRecreates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(Config{IdleTTL: time.Minute, Clock: clock})

	r.Acquire("s1")()
	clock.Advance(2 * time.Minute)
	r.Sweep()

	release := r.Acquire("s1")
	release()
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
