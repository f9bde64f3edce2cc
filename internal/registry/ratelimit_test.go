package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var limiterStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func Test_SlidingWindowLimiter_EnforcesBudget(t *testing.T) {
	limiter := NewSlidingWindowLimiter(3, time.Minute)

	assert.True(t, limiter.Allow(limiterStart))
	assert.True(t, limiter.Allow(limiterStart.Add(time.Second)))
	assert.True(t, limiter.Allow(limiterStart.Add(2*time.Second)))
	assert.False(t, limiter.Allow(limiterStart.Add(3*time.Second)))
	assert.Equal(t, 0, limiter.Remaining(limiterStart.Add(3*time.Second)))
}

func Test_SlidingWindowLimiter_WindowSlides(t *testing.T) {
	limiter := NewSlidingWindowLimiter(2, time.Minute)

	assert.True(t, limiter.Allow(limiterStart))
	assert.True(t, limiter.Allow(limiterStart.Add(30*time.Second)))
	assert.False(t, limiter.Allow(limiterStart.Add(45*time.Second)))

	// The first slot falls out of the window after a minute.
	assert.True(t, limiter.Allow(limiterStart.Add(61*time.Second)))
	assert.False(t, limiter.Allow(limiterStart.Add(62*time.Second)))
}

func Test_SlidingWindowLimiter_DeniedCallsConsumeNothing(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Minute)

	assert.True(t, limiter.Allow(limiterStart))
	for i := 0; i < 10; i++ {
		assert.False(t, limiter.Allow(limiterStart.Add(time.Duration(i)*time.Second)))
	}
	// One slot frees up exactly when the single consumed one expires.
	assert.True(t, limiter.Allow(limiterStart.Add(61*time.Second)))
}

func Test_SlidingWindowLimiter_ZeroLimitDisablesLimiting(t *testing.T) {
	limiter := NewSlidingWindowLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(limiterStart))
	}

	var nilLimiter *SlidingWindowLimiter
	assert.True(t, nilLimiter.Allow(limiterStart))
}
