package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLimiterAllowsUnderLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisWithClient(client, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "github:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be admitted", i)
	}
}

func TestRedisLimiterBlocksOverLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisWithClient(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "slack:1.2.3.4")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "slack:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisWithClient(client, 1, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "github:1.2.3.4")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "github:1.2.3.4")
	require.NoError(t, err)
	require.False(t, allowed)

	// A different source is unaffected by the exhausted key.
	allowed, err = limiter.Allow(ctx, "github:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNewRedisInvalidURL(t *testing.T) {
	_, err := NewRedis("not-a-valid-url", 100, time.Minute)
	assert.Error(t, err)
}

func TestNoOpAlwaysAllows(t *testing.T) {
	limiter := NoOp{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "anything")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}
