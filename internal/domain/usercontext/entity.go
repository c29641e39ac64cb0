package usercontext

import (
	"context"
	"time"
)

// UserContext is the ephemeral per-conversation personalization context.
// CallerToken and BearerAuth never leave the server in clear text.
type UserContext struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	CallerToken    string    `json:"caller_token,omitempty"`
	BearerAuth     string    `json:"bearer_auth,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Public is the subset that may be returned to the provider in clear text
type Public struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
}

// Public drops the credentials
func (u *UserContext) Public() Public {
	return Public{
		ConversationID: u.ConversationID,
		UserID:         u.UserID,
		Name:           u.Name,
	}
}

// Store keeps user contexts for a bounded time.
// Implementation is in internal/repository/redis/user_context_store.go
type Store interface {
	Save(ctx context.Context, uc *UserContext, ttl time.Duration) error

	// Get returns errors.ErrNotFound when missing or expired
	Get(ctx context.Context, conversationID string) (*UserContext, error)

	Delete(ctx context.Context, conversationID string) error
}
