package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebroker/pkg/errors"
)

// Lua script for token bucket algorithm (atomic operation)
// KEYS[1] = token bucket key
// ARGV[1] = rate (tokens per second)
// ARGV[2] = burst (max tokens)
// ARGV[3] = current timestamp in seconds
// ARGV[4] = idle expiry in seconds
// Returns: 1 if allowed, 0 if denied
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if not tokens then
    tokens = burst
    last_update = now
end

local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1.0 then
    tokens = tokens - 1.0
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, ARGV[4])

return allowed
`)

// SessionRateLimiter is a distributed per-user token bucket for session starts.
// It holds across replicas because the bucket lives in Redis.
type SessionRateLimiter struct {
	client *redis.Client
	rate   float64 // tokens per second
	burst  int
	now    func() time.Time
}

// NewSessionRateLimiter creates a limiter allowing perMinute session starts with the given burst
func NewSessionRateLimiter(client *redis.Client, perMinute, burst int) *SessionRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &SessionRateLimiter{
		client: client,
		rate:   float64(perMinute) / 60.0,
		burst:  burst,
		now:    time.Now,
	}
}

// Allow consumes one token for userID and reports whether the start may proceed
func (l *SessionRateLimiter) Allow(ctx context.Context, userID string) (allowed bool, err error) {
	defer track("rate_limit.allow")(&err)

	now := float64(l.now().UnixNano()) / float64(time.Second)
	result, err := tokenBucketScript.Run(ctx, l.client,
		[]string{sessionRateKeyPrefix + userID},
		l.rate,
		l.burst,
		now,
		l.idleExpiry(),
	).Int()
	if err != nil {
		return false, errors.Wrap(err, "failed to execute token bucket script")
	}

	return result == 1, nil
}

// Reset clears the bucket for userID
func (l *SessionRateLimiter) Reset(ctx context.Context, userID string) error {
	return l.client.Del(ctx, sessionRateKeyPrefix+userID).Err()
}

// idleExpiry is the time a drained bucket needs to refill, in whole seconds
func (l *SessionRateLimiter) idleExpiry() int {
	if l.rate <= 0 {
		return 3600
	}
	secs := int(float64(l.burst)/l.rate) + 1
	if secs < 60 {
		return 60
	}
	return secs
}
