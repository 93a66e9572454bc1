package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnshRaj112/marketbot-backend/internal/cache"
)

const eventKeyPrefix = "event:"

// Deduper drops redelivered inbound events at ingress.
type Deduper interface {
	// FirstSeen marks eventID as seen and reports whether this call was the
	// first within the window.
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// RedisDeduper shares the seen-set across restarts with SET NX EX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, eventKeyPrefix+eventID, 1, d.ttl).Result()
}

// MemoryDeduper keeps the seen-set in a process-local cache.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen *cache.Cache[struct{}]
}

func NewMemoryDeduper(seen *cache.Cache[struct{}]) *MemoryDeduper {
	return &MemoryDeduper{seen: seen}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen.Get(eventID); ok {
		return false, nil
	}
	d.seen.Set(eventID, struct{}{})
	return true, nil
}
