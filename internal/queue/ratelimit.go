package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter bounds inbound guidance requests per token over a fixed
// wall-clock minute window.
type RateLimiter struct {
	redis *redis.Client
	limit int64
}

func NewRateLimiter(rdb *redis.Client, limit int64) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit}
}

func (r *RateLimiter) Allow(ctx context.Context, token string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Minute)
	windowEnd := windowStart.Add(time.Minute)
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("prepmind:ratelimit:%s:%s", token, windowStart.Format("200601021504"))
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

// TokenCache holds positive auth lookups so every request does not hit the
// database.
type TokenCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewTokenCache(rdb *redis.Client, ttl time.Duration) *TokenCache {
	return &TokenCache{redis: rdb, ttl: ttl}
}

func (c *TokenCache) Get(ctx context.Context, token string) (label string, found bool, err error) {
	v, err := c.redis.Get(ctx, "prepmind:token:"+token).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("token cache get: %w", err)
	}
	return v, true, nil
}

func (c *TokenCache) Set(ctx context.Context, token, label string) error {
	if err := c.redis.Set(ctx, "prepmind:token:"+token, label, c.ttl).Err(); err != nil {
		return fmt.Errorf("token cache set: %w", err)
	}
	return nil
}
