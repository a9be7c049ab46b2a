package fulfillment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed delivery can block a redelivery.
const DefaultLockTTL = 10 * time.Minute

// Guard serializes shipment creation per order. Acquire reports false when
// another delivery already holds the order.
type Guard interface {
	Acquire(ctx context.Context, orderID int) (bool, error)
	Release(ctx context.Context, orderID int) error
}

// RedisGuard holds per-order locks in Redis so that every replica of the
// service sees the same lock.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard returns a RedisGuard. A non-positive ttl uses DefaultLockTTL.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, orderID int) (bool, error) {
	ok, err := g.client.SetNX(ctx, lockKey(orderID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, orderID int) error {
	if err := g.client.Del(ctx, lockKey(orderID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func lockKey(orderID int) string {
	return fmt.Sprintf("shipment-lock:%d", orderID)
}

// MemoryGuard is a process-local Guard for single-instance deployments.
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	locks map[int]time.Time // expiry
}

// NewMemoryGuard returns a MemoryGuard. A non-positive ttl uses DefaultLockTTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, locks: make(map[int]time.Time)}
}

func (g *MemoryGuard) Acquire(_ context.Context, orderID int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, held := g.locks[orderID]; held && now.Before(exp) {
		return false, nil
	}
	g.locks[orderID] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, orderID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, orderID)
	return nil
}

var (
	_ Guard = (*RedisGuard)(nil)
	_ Guard = (*MemoryGuard)(nil)
)
