package registry

import (
	"sync"
	"time"
)

// SlidingWindowLimiter enforces the externally imposed call budget for one
// registry using a sliding window over call timestamps. It is shared by all
// callers of the client it guards, so a single mutex is acceptable: the
// window only serializes calls that are about to hit the same registry
// anyway.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
}

// NewSlidingWindowLimiter creates a limiter allowing limit calls per window.
// A limit of zero disables limiting.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		timestamps: []time.Time{},
		limit:      limit,
		window:     window,
	}
}

// Allow reports whether a call may proceed at the given time and, if so,
// consumes one slot. Denied calls consume nothing.
func (l *SlidingWindowLimiter) Allow(now time.Time) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup(now)
	if len(l.timestamps) >= l.limit {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Remaining returns the unused slots in the current window.
func (l *SlidingWindowLimiter) Remaining(now time.Time) int {
	if l == nil || l.limit <= 0 {
		return 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup(now)
	return l.limit - len(l.timestamps)
}

// cleanup drops timestamps that fell out of the window. Must be called while
// holding l.mu.
func (l *SlidingWindowLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.timestamps); i++ {
		if l.timestamps[i].After(cutoff) {
			break
		}
	}
	l.timestamps = l.timestamps[i:]
}
