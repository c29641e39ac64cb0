package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/internal/domain/usercontext"
	"voicebroker/internal/testsupport"
	"voicebroker/pkg/errors"
)

func TestUserContextStore_Lifecycle(t *testing.T) {
	store := NewUserContextStore(testsupport.NewRedisClient(t))
	ctx := context.Background()

	uc := &usercontext.UserContext{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Name:           "Jane",
		CallerToken:    "token",
		BearerAuth:     "Bearer token",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, uc, time.Hour))

	got, err := store.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Name)
	assert.Equal(t, "Bearer token", got.BearerAuth)

	require.NoError(t, store.Delete(ctx, "conv-1"))

	_, err = store.Get(ctx, "conv-1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
