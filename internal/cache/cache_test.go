package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dapurnia/backend-pos/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var missed payload
	hit, err := c.GetJSON(ctx, "k", &missed)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "rules", Count: 3}))

	var got payload
	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, payload{Name: "rules", Count: 3}, got)
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "x"}))
	require.NoError(t, c.Invalidate(ctx, "k"))

	var got payload
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheTTLExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "x"}))
	mr.FastForward(2 * time.Minute)

	var got payload
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *cache.Cache
	ctx := context.Background()

	hit, err := c.GetJSON(ctx, "k", &payload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.SetJSON(ctx, "k", payload{}))
	require.NoError(t, c.Invalidate(ctx, "k"))
}
