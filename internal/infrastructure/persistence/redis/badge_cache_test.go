package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/pkg/testhelpers"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()

	rc := testhelpers.Redis(t)
	ctx := context.Background()

	cache, err := NewCache(ctx, Config{URL: rc.URL}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	require.NoError(t, cache.Client().FlushDB(ctx).Err())
	return cache
}

func TestBadgeCache_MissThenLoad(t *testing.T) {
	ctx := context.Background()
	c := NewBadgeCache(setupCache(t), time.Minute, nil)

	_, ok, err := c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBadgeIDs(ctx, "s1", nil))
	ids, ok, err := c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "an empty set is still a hit")
	assert.Empty(t, ids)

	require.NoError(t, c.SetBadgeIDs(ctx, "s1", []string{"b1", "b2"}))
	ids, ok, err = c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"b1", "b2"}, ids)
}

func TestBadgeCache_AddOnlyWhenLoaded(t *testing.T) {
	ctx := context.Background()
	c := NewBadgeCache(setupCache(t), time.Minute, nil)

	require.NoError(t, c.AddBadges(ctx, "s1", []string{"b1"}))
	_, ok, err := c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBadgeIDs(ctx, "s1", []string{"b1"}))
	require.NoError(t, c.AddBadges(ctx, "s1", []string{"b1", "b2"}))
	require.NoError(t, c.AddBadges(ctx, "s1", []string{"b3"}))

	ids, ok, err := c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, ids)

	require.NoError(t, c.Invalidate(ctx, "s1"))
	_, ok, err = c.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PushCapped(t *testing.T) {
	ctx := context.Background()
	cache := setupCache(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, cache.PushCapped(ctx, InboxKey("s1"), map[string]int{"n": i}, 3, time.Minute))
	}

	raw, err := cache.Range(ctx, InboxKey("s1"), 0, -1)
	require.NoError(t, err)
	require.Len(t, raw, 3)

	var newest map[string]int
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &newest))
	assert.Equal(t, 4, newest["n"])
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2", PoolSize: 7}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "not a url"}.Options()
	assert.Error(t, err)
}
