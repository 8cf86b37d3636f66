package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(threshold, cooldown)
	b.now = clock.now
	return b, clock
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, b.State())

	// a success resets the streak
	b.RecordSuccess()
	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	assert.False(t, b.Allow())

	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.True(t, b.Allow(), "first call after cooldown is the trial")
	assert.False(t, b.Allow(), "only one trial at a time")

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	clock.t = clock.t.Add(time.Minute)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestBreakerAbortFreesHalfOpenTrial(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	clock.t = clock.t.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	// the trial ended without an answer from the gateway
	b.Abort()
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.True(t, b.Allow(), "next call gets the trial slot")
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerAbortKeepsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.Abort()
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "open", BreakerOpen.String())
}
