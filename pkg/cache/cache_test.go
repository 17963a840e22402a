package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key("state", "NQ"), point{"NQ", 1.5}, time.Minute))
	got, err := GetAs[point](ctx, c, "state:NQ")
	require.NoError(t, err)
	assert.Equal(t, point{"NQ", 1.5}, got)

	var s string
	require.NoError(t, c.Set(ctx, "raw", "hello", 0))
	require.NoError(t, c.Get(ctx, "raw", &s))
	assert.Equal(t, "hello", s)

	_, err = GetAs[point](ctx, c, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheValuesAreCopies(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	p := &point{"ES", 1}
	require.NoError(t, c.Set(ctx, "p", p, time.Minute))
	p.Value = 99

	got, err := GetAs[point](ctx, c, "p")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Value)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	ok, _ := c.Exists(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { now = now.Add(time.Second); return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, c.Set(ctx, "b", 2, time.Hour))
	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	require.NoError(t, c.Set(ctx, "c", 3, time.Hour))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "a", &v))
	assert.NoError(t, c.Get(ctx, "c", &v))
}

type countingL2 struct {
	*MemoryCache
	gets int
	fail error
}

func (c *countingL2) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	return c.MemoryCache.Get(ctx, key, dest)
}

func (c *countingL2) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	if c.fail != nil {
		return c.fail
	}
	return c.MemoryCache.Set(ctx, key, value, exp)
}

func TestLayeredCacheServesFromMemory(t *testing.T) {
	l2 := &countingL2{MemoryCache: NewMemoryCache()}
	lc := NewLayeredCache(l2)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "state:GC", point{"GC", 2}, time.Minute))
	for i := 0; i < 3; i++ {
		got, err := GetAs[point](ctx, lc, "state:GC")
		require.NoError(t, err)
		assert.Equal(t, "GC", got.Symbol)
	}
	assert.Equal(t, 0, l2.gets)
}

func TestLayeredCacheFillsMemoryFromL2(t *testing.T) {
	l2 := &countingL2{MemoryCache: NewMemoryCache()}
	lc := NewLayeredCache(l2)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.MemoryCache.Set(ctx, "k", point{"CL", 3}, time.Minute))
	for i := 0; i < 2; i++ {
		got, err := GetAs[point](ctx, lc, "k")
		require.NoError(t, err)
		assert.Equal(t, 3.0, got.Value)
	}
	assert.Equal(t, 1, l2.gets)

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err := GetAs[point](ctx, lc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCacheWriteFailureSkipsMemory(t *testing.T) {
	l2 := &countingL2{MemoryCache: NewMemoryCache(), fail: errors.New("redis down")}
	lc := NewLayeredCache(l2)
	defer lc.Close()

	assert.Error(t, lc.Set(context.Background(), "k", 1, time.Minute))
	ok, _ := lc.mem.Exists(context.Background(), "k")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "state:NQ", Key("state", "NQ"))
	assert.Equal(t, "regimes:ES:20", Key("regimes", "ES", 20))
}
