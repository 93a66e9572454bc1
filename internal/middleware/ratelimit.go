package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// AuthFailureWindow is how long failed attempts are remembered.
	AuthFailureWindow = 10 * time.Minute
	// AuthMaxFailures failed attempts inside the window block the IP.
	AuthMaxFailures = 5
	// BlockedIPDuration is how long an IP stays blocked.
	BlockedIPDuration = time.Hour

	authFailureKeyPrefix = "auth_fail:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
)

// FailureGuard blocks client IPs that keep failing admin authentication.
// State lives in Redis so every instance sees the same blocks. Redis errors
// fail open.
type FailureGuard struct {
	client      *redis.Client
	maxFailures int64
	window      time.Duration
	block       time.Duration
}

func NewFailureGuard(client *redis.Client) *FailureGuard {
	return &FailureGuard{
		client:      client,
		maxFailures: AuthMaxFailures,
		window:      AuthFailureWindow,
		block:       BlockedIPDuration,
	}
}

// Blocked reports whether ip is currently blocked.
func (g *FailureGuard) Blocked(ctx context.Context, ip string) bool {
	n, err := g.client.Exists(ctx, BlockedIPKeyPrefix+ip).Result()
	return err == nil && n > 0
}

// RecordFailure counts one failed attempt and blocks ip once the window
// holds maxFailures of them. It reports whether ip is now blocked.
func (g *FailureGuard) RecordFailure(ctx context.Context, ip string) bool {
	key := authFailureKeyPrefix + ip
	n, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return false
	}
	if n == 1 {
		g.client.Expire(ctx, key, g.window)
	}
	if n < g.maxFailures {
		return false
	}

	if err := g.client.Set(ctx, BlockedIPKeyPrefix+ip, "1", g.block).Err(); err != nil {
		return false
	}
	g.client.Del(ctx, key)
	return true
}

// Reset forgets earlier failures after a successful attempt.
func (g *FailureGuard) Reset(ctx context.Context, ip string) {
	g.client.Del(ctx, authFailureKeyPrefix+ip)
}

// Unblock removes an IP from the blocked list (admin function)
func (g *FailureGuard) Unblock(ctx context.Context, ip string) error {
	return g.client.Del(ctx, BlockedIPKeyPrefix+ip).Err()
}
