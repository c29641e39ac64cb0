package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/internal/domain/session"
	"voicebroker/pkg/errors"
)

func newTestSession(userID string, start time.Time) *session.Session {
	return &session.Session{
		ID:             session.NewID(),
		UserID:         userID,
		UserName:       "Alice Martin",
		ConversationID: "conv_" + uuid.NewString(),
		AgentID:        "assistant",
		Status:         session.StatusStarting,
		ClientType:     session.ClientWeb,
		StartTime:      start.UTC().Truncate(time.Microsecond),
		Metadata:       session.Metadata{"app_version": "1.4.0"},
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	testDB := newTestDB(t)
	repo := NewSessionRepository(testDB.Tx())
	ctx := context.Background()

	s := newTestSession(uuid.NewString(), time.Now())
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, session.StatusStarting, got.Status)
	assert.Equal(t, session.ClientWeb, got.ClientType)
	assert.True(t, s.StartTime.Equal(got.StartTime))
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.ProviderConversationID)
	assert.Equal(t, "1.4.0", got.Metadata["app_version"])

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestSessionRepository_UpdateProviderID(t *testing.T) {
	testDB := newTestDB(t)
	repo := NewSessionRepository(testDB.Tx())
	ctx := context.Background()

	s := newTestSession(uuid.NewString(), time.Now())
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.UpdateProviderID(ctx, s.ID, "prov_123"))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
	require.NotNil(t, got.ProviderConversationID)
	assert.Equal(t, "prov_123", *got.ProviderConversationID)

	// unknown id is a no-op
	require.NoError(t, repo.UpdateProviderID(ctx, "missing", "prov_456"))
}

func TestSessionRepository_UpdateEndOnlyOnce(t *testing.T) {
	testDB := newTestDB(t)
	repo := NewSessionRepository(testDB.Tx())
	ctx := context.Background()

	start := time.Now().Add(-42 * time.Second)
	s := newTestSession(uuid.NewString(), start)
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, s.Finish(start.Add(42*time.Second), session.StatusEnded))
	updated, err := repo.UpdateEnd(ctx, s)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.Equal(t, int64(42), got.DurationSeconds)
	require.NotNil(t, got.EndTime)

	// terminal rows are never rewritten
	again := *s
	again.DurationSeconds = 99
	updated, err = repo.UpdateEnd(ctx, &again)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err = repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.DurationSeconds)
}

func TestSessionRepository_Listings(t *testing.T) {
	testDB := newTestDB(t)
	repo := NewSessionRepository(testDB.Tx())
	ctx := context.Background()

	userID := uuid.NewString()
	now := time.Now()

	old := newTestSession(userID, now.Add(-2*time.Hour))
	fresh := newTestSession(userID, now.Add(-time.Minute))
	ended := newTestSession(userID, now.Add(-3*time.Hour))
	for _, s := range []*session.Session{old, fresh, ended} {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, ended.Finish(now.Add(-170*time.Minute), session.StatusEnded))
	_, err := repo.UpdateEnd(ctx, ended)
	require.NoError(t, err)

	byUser, err := repo.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	assert.Equal(t, fresh.ID, byUser[0].ID)

	stale, err := repo.ListStale(ctx, now.Add(-30*time.Minute), 100)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, s := range stale {
		ids[s.ID] = true
	}
	assert.True(t, ids[old.ID])
	assert.False(t, ids[fresh.ID])
	assert.False(t, ids[ended.ID])

	open, err := repo.ListNotEnded(ctx, 1000)
	require.NoError(t, err)
	ids = map[string]bool{}
	for _, s := range open {
		ids[s.ID] = true
		assert.False(t, s.Status.IsTerminal())
	}
	assert.True(t, ids[old.ID])
	assert.True(t, ids[fresh.ID])
}
