// Package ratelimit bounds assistant-triggering requests with a single
// process-wide sliding window. One household shares one budget: the
// limiter deliberately does not distinguish clients.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrLimited signals the window budget is spent. The HTTP layer maps it
// to 429.
var ErrLimited = errors.New("rate limit exceeded")

// Defaults match the add-on: at most 10 model-bound requests per minute.
const (
	DefaultWindow = time.Minute
	DefaultMax    = 10
)

// Limiter is a sliding-window counter over request timestamps.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu     sync.Mutex
	stamps []time.Time
}

// New creates a Limiter with the given window and budget. Zero values
// fall back to the defaults.
func New(window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Limiter{window: window, max: max, now: time.Now}
}

// Allow prunes timestamps outside the trailing window, then either
// rejects with ErrLimited or records this request and admits it.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if len(l.stamps) >= l.max {
		return ErrLimited
	}
	l.stamps = append(l.stamps, now)
	return nil
}
