package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/internal/testsupport"
)

func TestSessionRateLimiter_BurstThenRefill(t *testing.T) {
	limiter := NewSessionRateLimiter(testsupport.NewRedisClient(t), 6, 3)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i)
	}

	ok, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other users have their own bucket
	ok, err = limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok)

	// 6 per minute refills one token every 10 seconds
	now = now.Add(10 * time.Second)
	ok, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.Reset(ctx, "user-1"))
	ok, err = limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
