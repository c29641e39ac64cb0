package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebroker/internal/domain/session"
	"voicebroker/pkg/errors"
)

// Compile-time check
var _ session.Cache = (*SessionCache)(nil)

// refreshSessionScript rewrites a live session unless it expired, is being ended or was ended.
// KEYS = session key, end claim key, ended key, active set, user set
// ARGV = session json, ttl_ms, session id
// Returns 1 when written, 0 when skipped
var refreshSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 or redis.call('EXISTS', KEYS[3]) == 1 then
    return 0
end

redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[4], ARGV[3])
redis.call('PEXPIRE', KEYS[4], ARGV[2])
redis.call('SADD', KEYS[5], ARGV[3])
redis.call('PEXPIRE', KEYS[5], ARGV[2])

return 1
`)

// SessionCache implements session.Cache using Redis.
// Each live session is a JSON value; the active and per-user sets index them.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Put stores the session and adds it to both indexes, re-arming every TTL
func (c *SessionCache) Put(ctx context.Context, s *session.Session, ttl time.Duration) (err error) {
	defer track("session.put")(&err)

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal session: id=%s", s.ID)
	}

	userKey := userSessionsKey(s.UserID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.ID), data, ttl)
		pipe.SAdd(ctx, activeSessionsKey, s.ID)
		pipe.Expire(ctx, activeSessionsKey, ttl)
		pipe.SAdd(ctx, userKey, s.ID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to cache session: id=%s", s.ID)
	}

	return nil
}

// Get loads a cached session
func (c *SessionCache) Get(ctx context.Context, id string) (s *session.Session, err error) {
	defer track("session.get")(&err)

	data, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session not cached: id=%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get session from redis: id=%s", id)
	}

	s = &session.Session{}
	if err = json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal session: id=%s", id)
	}

	return s, nil
}

// Refresh rewrites a session that is still live. The existence checks and the write run as
// one script, so an end that claims or evicts first always wins.
func (c *SessionCache) Refresh(ctx context.Context, s *session.Session, ttl time.Duration) (ok bool, err error) {
	defer track("session.refresh")(&err)

	data, err := json.Marshal(s)
	if err != nil {
		return false, errors.Wrapf(err, "failed to marshal session: id=%s", s.ID)
	}

	written, err := refreshSessionScript.Run(ctx, c.client,
		[]string{sessionKey(s.ID), endClaimKey(s.ID), endedKey(s.ID), activeSessionsKey, userSessionsKey(s.UserID)},
		data,
		ttl.Milliseconds(),
		s.ID,
	).Int()
	if err != nil {
		return false, errors.Wrapf(err, "failed to refresh session: id=%s", s.ID)
	}

	return written == 1, nil
}

// Evict drops the session and its index memberships
func (c *SessionCache) Evict(ctx context.Context, s *session.Session) (err error) {
	defer track("session.evict")(&err)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(s.ID))
		pipe.SRem(ctx, activeSessionsKey, s.ID)
		pipe.SRem(ctx, userSessionsKey(s.UserID), s.ID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to evict session: id=%s", s.ID)
	}

	return nil
}

// ListActive returns every session in the active index
func (c *SessionCache) ListActive(ctx context.Context) (list []*session.Session, err error) {
	defer track("session.list_active")(&err)
	return c.resolve(ctx, activeSessionsKey)
}

// ListByUser returns every session in the user's index
func (c *SessionCache) ListByUser(ctx context.Context, userID string) (list []*session.Session, err error) {
	defer track("session.list_user")(&err)
	return c.resolve(ctx, userSessionsKey(userID))
}

// resolve loads the sessions behind an index set with one MGET.
// Ids whose value has expired are removed from the set.
func (c *SessionCache) resolve(ctx context.Context, setKey string) ([]*session.Session, error) {
	ids, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read index %s", setKey)
	}
	if len(ids) == 0 {
		return []*session.Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load sessions for %s", setKey)
	}

	list := make([]*session.Session, 0, len(values))
	dangling := make([]interface{}, 0)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}

		var s session.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			dangling = append(dangling, ids[i])
			continue
		}
		list = append(list, &s)
	}

	if len(dangling) > 0 {
		if err := c.client.SRem(ctx, setKey, dangling...).Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to prune index %s", setKey)
		}
	}

	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

// CountActive returns the size of the active index
func (c *SessionCache) CountActive(ctx context.Context) (n int64, err error) {
	defer track("session.count_active")(&err)

	n, err = c.client.SCard(ctx, activeSessionsKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count active sessions")
	}
	return n, nil
}

// ClaimEnd takes the end claim for id. Only one caller ever gets true until the claim expires.
func (c *SessionCache) ClaimEnd(ctx context.Context, id string, ttl time.Duration) (ok bool, err error) {
	defer track("session.claim_end")(&err)

	ok, err = c.client.SetNX(ctx, endClaimKey(id), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim session end: id=%s", id)
	}
	return ok, nil
}

// ReleaseEnd drops the end claim
func (c *SessionCache) ReleaseEnd(ctx context.Context, id string) (err error) {
	defer track("session.release_end")(&err)

	if err = c.client.Del(ctx, endClaimKey(id)).Err(); err != nil {
		return errors.Wrapf(err, "failed to release session end claim: id=%s", id)
	}
	return nil
}

// MarkEnded stores the accounted session under its ended key
func (c *SessionCache) MarkEnded(ctx context.Context, s *session.Session, ttl time.Duration) (err error) {
	defer track("session.mark_ended")(&err)

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal session: id=%s", s.ID)
	}

	if err = c.client.Set(ctx, endedKey(s.ID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to mark session ended: id=%s", s.ID)
	}
	return nil
}

// GetEnded loads the session stored by MarkEnded
func (c *SessionCache) GetEnded(ctx context.Context, id string) (s *session.Session, err error) {
	defer track("session.get_ended")(&err)

	data, err := c.client.Get(ctx, endedKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session not marked ended: id=%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get ended session: id=%s", id)
	}

	s = &session.Session{}
	if err = json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal ended session: id=%s", id)
	}
	return s, nil
}
