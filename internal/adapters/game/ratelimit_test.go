package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_EnforcesFloor(t *testing.T) {
	const interval = 50 * time.Millisecond
	limiter := NewRateLimiter(interval)
	ctx := context.Background()

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(ctx))
		stamps = append(stamps, time.Now())
	}

	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		// Small scheduling slack; the floor itself must hold
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"consecutive acquires %d and %d too close", i-1, i)
	}
}

func TestRateLimiter_FirstAcquireImmediate(t *testing.T) {
	limiter := NewRateLimiter(time.Second)

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background()))

	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"the first permit must not wait the full interval")
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	limiter := NewRateLimiter(time.Minute)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	assert.Error(t, err, "a cancelled context must not block on the interval")
}

func TestRateLimiter_RecordsLastRequest(t *testing.T) {
	limiter := NewRateLimiter(time.Millisecond)
	assert.True(t, limiter.LastRequest().IsZero())

	require.NoError(t, limiter.Acquire(context.Background()))
	assert.WithinDuration(t, time.Now(), limiter.LastRequest(), time.Second)
}
