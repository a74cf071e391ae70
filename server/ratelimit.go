// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Default admission policy: 100 searches per client every 15 minutes.
const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultRateLimitMax    = 100
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Duration // until the oldest counted request leaves the window
	RetryAfter time.Duration // zero when allowed
}

// RateLimiter admits at most limit requests per client key in any sliding
// window. It keeps the timestamps of the admitted requests of each client;
// clients idle for a whole window are evicted.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients *cache.Cache
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. A non positive limit admits everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}

	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: cache.New(window, window),
		now:     time.Now,
	}
}

// Window returns the length of the sliding window.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// Allow records a request from key and reports whether it is admitted.
// Rejected requests are not counted.
func (l *RateLimiter) Allow(key string) Decision {
	if l.limit <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	var hits []time.Time
	if v, ok := l.clients.Get(key); ok {
		hits = v.([]time.Time)
	}

	// drop what left the window
	first := 0
	for first < len(hits) && !hits[first].After(cutoff) {
		first++
	}

	hits = hits[first:]

	if len(hits) >= l.limit {
		wait := hits[0].Add(l.window).Sub(now)
		l.clients.SetDefault(key, hits)

		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			Reset:      wait,
			RetryAfter: wait,
		}
	}

	hits = append(hits, now)
	l.clients.SetDefault(key, hits)

	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(hits),
		Reset:     hits[0].Add(l.window).Sub(now),
	}
}
