package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares last call times between instances through Redis.
// Each key stores the unix-nanosecond call time and expires with the interval.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis creates a RedisLimiter. An empty prefix defaults to "weather:ratelimit:".
func NewRedis(client *redis.Client, prefix string, now func() time.Time) *RedisLimiter {
	if prefix == "" {
		prefix = "weather:ratelimit:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}
}

// Allow reports whether interval has elapsed since the call recorded for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string, interval time.Duration) (bool, time.Duration, error) {
	val, err := l.client.Get(ctx, l.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read last call: %w", err)
	}

	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unreadable entries do not block calls.
		return true, 0, nil
	}
	return decide(l.now().Sub(time.Unix(0, nanos)), interval)
}

// Record stores now as the last call for key with a TTL of interval.
func (l *RedisLimiter) Record(ctx context.Context, key string, interval time.Duration) error {
	now := l.now().UnixNano()
	if err := l.client.Set(ctx, l.prefix+key, strconv.FormatInt(now, 10), interval).Err(); err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}
