package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientWith(rdb, &config.RedisConfig{KeyPrefix: "ell"}), mr
}

func TestClientKeyAndHealth(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "ell:emb:abc", c.Key("emb", "abc"))
	assert.NoError(t, c.HealthCheck(context.Background()))

	bare := NewClientWith(c.Redis(), nil)
	assert.Equal(t, "a:b", bare.Key("a", "b"))
}

func TestCacheGetSetAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	cache := NewCache(c)

	require.NoError(t, cache.Set(ctx, cache.Key("emb", "1"), []float32{1, 2}, time.Minute))
	require.NoError(t, cache.Set(ctx, cache.Key("emb", "2"), []float32{3}, time.Minute))

	vals, err := cache.MGet(ctx, cache.Key("emb", "1"), cache.Key("emb", "x"), cache.Key("emb", "2"))
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.JSONEq(t, `[1,2]`, string(vals[0]))
	assert.Nil(t, vals[1])
	assert.JSONEq(t, `[3]`, string(vals[2]))

	n, err := cache.InvalidatePattern(ctx, cache.Key("emb", "*"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	key := rl.BuildRateLimitKey("10.0.0.1", "/v1/fusion/query")
	assert.Equal(t, "ell:ratelimit:10.0.0.1:/v1/fusion/query", key)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	left, err := rl.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, left)
}
