package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"voicebroker/internal/domain/usercontext"
	"voicebroker/pkg/errors"
)

// Compile-time check
var _ usercontext.Store = (*UserContextStore)(nil)

// UserContextStore implements usercontext.Store using Redis
type UserContextStore struct {
	client *redis.Client
}

// NewUserContextStore creates a new user context store
func NewUserContextStore(client *redis.Client) *UserContextStore {
	return &UserContextStore{client: client}
}

// Save stores the context with TTL
func (s *UserContextStore) Save(ctx context.Context, uc *usercontext.UserContext, ttl time.Duration) (err error) {
	defer track("user_context.save")(&err)

	data, err := json.Marshal(uc)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal user context: conversation_id=%s", uc.ConversationID)
	}

	if err = s.client.Set(ctx, userContextKey(uc.ConversationID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save user context: conversation_id=%s", uc.ConversationID)
	}

	return nil
}

// Get retrieves a context by conversation id
func (s *UserContextStore) Get(ctx context.Context, conversationID string) (uc *usercontext.UserContext, err error) {
	defer track("user_context.get")(&err)

	data, err := s.client.Get(ctx, userContextKey(conversationID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "user context not found: conversation_id=%s", conversationID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user context: conversation_id=%s", conversationID)
	}

	uc = &usercontext.UserContext{}
	if err = json.Unmarshal(data, uc); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal user context: conversation_id=%s", conversationID)
	}

	return uc, nil
}

// Delete removes a context
func (s *UserContextStore) Delete(ctx context.Context, conversationID string) (err error) {
	defer track("user_context.delete")(&err)

	if err = s.client.Del(ctx, userContextKey(conversationID)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete user context: conversation_id=%s", conversationID)
	}

	return nil
}
