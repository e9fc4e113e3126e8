// Package ratelimit keeps fixed-window request counters and cooldowns in Redis.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per client IP and purpose in fixed windows, and
// holds per-address reset mail cooldowns
type Limiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	cooldown    time.Duration
}

func NewLimiter(client *redis.Client, maxRequests int, window, resetCooldown time.Duration) *Limiter {
	return &Limiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		cooldown:    resetCooldown,
	}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:%s:%s", purpose, ip)
}

// cooldownKey hashes the address so Redis never holds it in clear
func cooldownKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return "reset_cooldown:" + hex.EncodeToString(sum[:])
}

// CheckIPRateLimitWithPurpose reports whether ip has used up its budget for purpose
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count >= l.maxRequests, nil
}

// RecordIPRequestWithPurpose counts one request. The window starts with the first request.
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return nil
}

// AllowResetEmail reports whether a reset mail may go to email now and, when
// it may, starts the cooldown atomically
func (l *Limiter) AllowResetEmail(ctx context.Context, email string) (bool, error) {
	ok, err := l.client.SetNX(ctx, cooldownKey(email), 1, l.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set reset cooldown: %w", err)
	}
	return ok, nil
}
