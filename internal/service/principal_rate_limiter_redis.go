package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token bucket: ARGV = capacity, tokens por ms, now en ms, tokens pedidos, ttl en ms.
const redisTokenBucketScript = `
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local bucket = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end
local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * refill)
local allowed = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return allowed
`

type redisPrincipalRateLimiter struct {
	client    redisEvaler
	capacity  int
	perMinute int
	prefix    string
	now       func() time.Time
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisPrincipalRateLimiter crea un token bucket distribuido por username.
func NewRedisPrincipalRateLimiter(client *redis.Client, capacity, perMinute int) PrincipalRateLimiter {
	if client == nil {
		return nil
	}
	return newRedisPrincipalRateLimiter(client, capacity, perMinute, time.Now)
}

func newRedisPrincipalRateLimiter(client redisEvaler, capacity, perMinute int, now func() time.Time) *redisPrincipalRateLimiter {
	if capacity <= 0 {
		capacity = defaultBucketCapacity
	}
	if perMinute <= 0 {
		perMinute = defaultBucketPerMinute
	}
	return &redisPrincipalRateLimiter{
		client:    client,
		capacity:  capacity,
		perMinute: perMinute,
		prefix:    "rl:principal:",
		now:       now,
	}
}

func (l *redisPrincipalRateLimiter) TryConsume(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	refillPerMs := float64(l.perMinute) / float64(time.Minute/time.Millisecond)
	// el bucket expira cuando se habría rellenado por completo
	ttlMs := int64(float64(l.capacity)/refillPerMs) + 1000
	args := []interface{}{
		l.capacity,
		strconv.FormatFloat(refillPerMs, 'f', -1, 64),
		l.now().UnixMilli(),
		1,
		ttlMs,
	}
	allowed, err := l.client.Eval(ctx, redisTokenBucketScript, []string{l.prefix + key}, args...).Int()
	if err != nil {
		return true
	}
	return allowed == 1
}
