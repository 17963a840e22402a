package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(
		WithRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
		WithRedisPrefix("fks:"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCacheRoundTripWithPrefix(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, Key("state", "ES"), point{"ES", 2.5}, time.Minute))
	assert.True(t, mr.Exists("fks:state:ES"))
	assert.Equal(t, time.Minute, mr.TTL("fks:state:ES"))

	got, err := GetAs[point](ctx, rc, "state:ES")
	require.NoError(t, err)
	assert.Equal(t, point{"ES", 2.5}, got)

	ok, err := rc.Exists(ctx, "state:ES", "state:NQ")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rc.Delete(ctx, "state:ES"))
	_, err = GetAs[point](ctx, rc, "state:ES")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheExpiry(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)
	var s string
	assert.ErrorIs(t, rc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestLayeredOverRedis(t *testing.T) {
	rc, mr := newTestRedis(t)
	lc := NewLayeredCache(rc, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "state:GC", point{"GC", 1}, time.Minute))
	mr.FlushAll()

	// L1 still answers after the remote copy is gone
	got, err := GetAs[point](ctx, lc, "state:GC")
	require.NoError(t, err)
	assert.Equal(t, "GC", got.Symbol)
}

func TestNewRedisCacheFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisCache(WithRedisAddr(addr))
	assert.Error(t, err)
}
