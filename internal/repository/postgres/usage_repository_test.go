package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/pkg/errors"
)

func TestUsageRepository_IncrementCreatesAndAccumulates(t *testing.T) {
	testDB := newTestDB(t)
	repo := NewUsageRepository(testDB.Tx())
	ctx := context.Background()

	userID := uuid.NewString()
	day := "2026-03-01"

	_, err := repo.Get(ctx, userID, day)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	u, err := repo.Increment(ctx, userID, day, 590, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(590), u.TotalSeconds)
	assert.Equal(t, int64(1), u.SessionCount)
	assert.Equal(t, day, u.Date)
	assert.False(t, u.LimitReached)

	// the limit captured at creation is kept even if the caller passes a new one
	u, err = repo.Increment(ctx, userID, day, 20, 1200)
	require.NoError(t, err)
	assert.Equal(t, int64(610), u.TotalSeconds)
	assert.Equal(t, int64(2), u.SessionCount)
	assert.Equal(t, int64(600), u.LimitSeconds)
	assert.True(t, u.LimitReached)

	got, err := repo.Get(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, u.TotalSeconds, got.TotalSeconds)

	n, err := repo.CountLimitReached(ctx, day)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	// a new day starts from zero
	u, err = repo.Increment(ctx, userID, "2026-03-02", 5, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.TotalSeconds)
}

func TestUsageRepository_ConcurrentIncrementsLoseNothing(t *testing.T) {
	testDB := newTestDB(t)
	// concurrency needs separate connections, not the test transaction
	repo := NewUsageRepository(testDB.DB())
	ctx := context.Background()

	userID := "concurrency-" + uuid.NewString()
	day := "2026-03-01"
	t.Cleanup(func() {
		_, _ = testDB.DB().ExecContext(context.Background(), `DELETE FROM usage_daily WHERE user_id = $1`, userID)
	})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Increment(ctx, userID, day, 7, 600)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := repo.Get(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*7), u.TotalSeconds)
	assert.Equal(t, int64(workers), u.SessionCount)
}
