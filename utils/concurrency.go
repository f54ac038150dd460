package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out page loads so consecutive navigations are at least
// minInterval apart. A nil Throttle or a non-positive interval never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a Throttle with the given minimum interval in milliseconds.
func NewThrottle(rateLimitMs int) *Throttle {
	if rateLimitMs <= 0 {
		return &Throttle{}
	}
	interval := time.Duration(rateLimitMs) * time.Millisecond
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next load is allowed or ctx ends.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}

// URLSet tracks distinct URLs.
type URLSet struct {
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	return len(s.seen)
}
