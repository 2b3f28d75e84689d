package redis_test

import (
	"context"
	"testing"
	"time"

	"bank-node/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Unix(1_700_000_000, 0)
	store := redis.NewRateLimitStore(client)
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()

	t.Run("allows commands within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "10.0.0.5", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "command %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks commands over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.5", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different clients are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.6", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("new window starts from zero", func(t *testing.T) {
		key := "10.0.0.7"
		_, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)

		result, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		now = now.Add(time.Minute)
		result, err = store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("sets ResetAt to the window end", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.8", 10, time.Minute)
		require.NoError(t, err)
		assert.Greater(t, result.ResetAt, now.Unix())
		assert.LessOrEqual(t, result.ResetAt, now.Add(time.Minute).Unix())
	})

	t.Run("counter keys expire", func(t *testing.T) {
		_, err := store.Allow(ctx, "10.0.0.9", 10, time.Minute)
		require.NoError(t, err)
		mr.FastForward(2 * time.Minute)
		for _, k := range mr.Keys() {
			assert.NotContains(t, k, "10.0.0.9")
		}
	})
}

func TestRateLimitStore_RejectsTinyWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := redis.NewRateLimitStore(client).Allow(context.Background(), "k", 1, time.Microsecond)
	assert.Error(t, err)
}

func TestRateLimitStore_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err := redis.NewRateLimitStore(client).Allow(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis rate limit")
}
