package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebroker/internal/domain/usage"
	"voicebroker/pkg/errors"
)

// Compile-time check
var _ usage.Cache = (*UsageCache)(nil)

// storeUsageScript writes the usage hash unless the cached total is already higher.
// KEYS[1] = usage key
// ARGV = user_id, total_seconds, session_count, limit_seconds, limit_reached, updated_at, ttl_ms
// Returns 1 when written, 0 when the cached record was newer
var storeUsageScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'total_seconds'))
if current and current > tonumber(ARGV[2]) then
    return 0
end

redis.call('HSET', KEYS[1],
    'user_id', ARGV[1],
    'total_seconds', ARGV[2],
    'session_count', ARGV[3],
    'limit_seconds', ARGV[4],
    'limit_reached', ARGV[5],
    'updated_at', ARGV[6])
redis.call('PEXPIRE', KEYS[1], ARGV[7])

return 1
`)

// UsageCache implements usage.Cache using one Redis hash per user and day
type UsageCache struct {
	client *redis.Client
}

// NewUsageCache creates a new usage cache
func NewUsageCache(client *redis.Client) *UsageCache {
	return &UsageCache{client: client}
}

// Get loads the cached usage record for userID on day
func (c *UsageCache) Get(ctx context.Context, userID, day string) (u *usage.DailyUsage, err error) {
	defer track("usage.get")(&err)

	fields, err := c.client.HGetAll(ctx, usageKey(userID, day)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get usage from redis: user_id=%s day=%s", userID, day)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "usage not cached: user_id=%s day=%s", userID, day)
	}

	u = &usage.DailyUsage{UserID: userID, Date: day}
	if u.TotalSeconds, err = strconv.ParseInt(fields["total_seconds"], 10, 64); err != nil {
		return nil, errors.Wrap(err, "invalid cached total_seconds")
	}
	if u.SessionCount, err = strconv.ParseInt(fields["session_count"], 10, 64); err != nil {
		return nil, errors.Wrap(err, "invalid cached session_count")
	}
	if u.LimitSeconds, err = strconv.ParseInt(fields["limit_seconds"], 10, 64); err != nil {
		return nil, errors.Wrap(err, "invalid cached limit_seconds")
	}
	u.LimitReached = fields["limit_reached"] == "1"
	if ts := fields["updated_at"]; ts != "" {
		u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}

	return u, nil
}

// Store writes u unless the cached total already exceeds it
func (c *UsageCache) Store(ctx context.Context, u *usage.DailyUsage, ttl time.Duration) (err error) {
	defer track("usage.store")(&err)

	reached := "0"
	if u.LimitReached {
		reached = "1"
	}

	err = storeUsageScript.Run(ctx, c.client,
		[]string{usageKey(u.UserID, u.Date)},
		u.UserID,
		u.TotalSeconds,
		u.SessionCount,
		u.LimitSeconds,
		reached,
		u.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		return errors.Wrapf(err, "failed to cache usage: user_id=%s day=%s", u.UserID, u.Date)
	}

	return nil
}

// Delete drops the cached record for userID on day
func (c *UsageCache) Delete(ctx context.Context, userID, day string) (err error) {
	defer track("usage.delete")(&err)

	if err = c.client.Del(ctx, usageKey(userID, day)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete cached usage: user_id=%s day=%s", userID, day)
	}
	return nil
}
