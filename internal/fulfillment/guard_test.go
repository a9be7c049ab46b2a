package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisGuard(t *testing.T) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisGuard(client, time.Minute), mr
}

func TestRedisGuard_AcquireIsExclusive(t *testing.T) {
	g, mr := setupRedisGuard(t)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("shipment-lock:42"))
	assert.Equal(t, time.Minute, mr.TTL("shipment-lock:42"))

	ok, err = g.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	ok, err = g.Acquire(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per order")
}

func TestRedisGuard_ReleaseAndExpiry(t *testing.T) {
	g, mr := setupRedisGuard(t)
	ctx := context.Background()

	_, err := g.Acquire(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx, 7))
	assert.False(t, mr.Exists("shipment-lock:7"))

	ok, err := g.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = g.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is free again")
}

func TestRedisGuard_ServerDown(t *testing.T) {
	g, mr := setupRedisGuard(t)
	mr.Close()

	ok, err := g.Acquire(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(time.Minute)
	g.now = func() time.Time { return now }

	ok, _ := g.Acquire(ctx, 42)
	assert.True(t, ok)
	ok, _ = g.Acquire(ctx, 42)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = g.Acquire(ctx, 42)
	assert.True(t, ok, "expired")

	require.NoError(t, g.Release(ctx, 42))
	ok, _ = g.Acquire(ctx, 42)
	assert.True(t, ok, "released")
}
