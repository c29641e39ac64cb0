package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebroker/internal/domain/usage"
	"voicebroker/internal/testsupport"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

func newTestService(t *testing.T, now time.Time) (*Service, *testsupport.MemoryUsageRepository, *testsupport.MemoryUsageCache) {
	t.Helper()

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	repo := testsupport.NewMemoryUsageRepository()
	cache := testsupport.NewMemoryUsageCache()
	cal := usage.NewCalendar(paris, func() time.Time { return now })

	return NewService(repo, cache, cal, 600, time.Hour, logger.Nop()), repo, cache
}

func TestService_GetDailyUsageMaterializesZeroInCacheOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, cache := newTestService(t, now)
	ctx := context.Background()

	u, err := svc.GetDailyUsage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.TotalSeconds)
	assert.Equal(t, int64(600), u.LimitSeconds)
	assert.Equal(t, "2026-03-01", u.Date)

	_, err = repo.Get(ctx, "user-1", "2026-03-01")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	cached, err := cache.Get(ctx, "user-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cached.TotalSeconds)
}

func TestService_DayKeyUsesReferenceTimezone(t *testing.T) {
	// 23:30 UTC on Feb 28 is already March 1 in Paris
	now := time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	u, err := svc.Record(context.Background(), "user-1", now, 42)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", u.Date)
}

func TestService_QuotaGate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	_, err := svc.Record(ctx, "user-1", now, 590)
	require.NoError(t, err)

	_, err = svc.CheckQuota(ctx, "user-1")
	require.NoError(t, err, "590 < 600 must still allow a start")

	u, err := svc.Record(ctx, "user-1", now, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(610), u.TotalSeconds)
	assert.True(t, u.LimitReached)

	_, err = svc.CheckQuota(ctx, "user-1")
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
}

func TestService_RecordFailureIsSurfaced(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _ := newTestService(t, now)
	repo.IncrementErr = errors.New("connection refused")

	_, err := svc.Record(context.Background(), "user-1", now, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistenceDegraded))
}

func TestService_StoreErrorFailsClosed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, cache := newTestService(t, now)
	repo.GetErr = errors.New("connection refused")
	cache.GetErr = errors.New("redis down")

	_, err := svc.CheckQuota(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestService_ConcurrentRecordsLoseNothing(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, cache := newTestService(t, now)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(ctx, "user-1", now, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, "user-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(3*n), stored.TotalSeconds)
	assert.Equal(t, int64(n), stored.SessionCount)

	cached, err := cache.Get(ctx, "user-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(3*n), cached.TotalSeconds, "cache must end on the highest total")
}

func TestService_FailedCacheWriteAfterRecordClosesGate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, cache := newTestService(t, now)
	ctx := context.Background()

	// the gate materializes a zero record in the cache
	_, err := svc.CheckQuota(ctx, "user-1")
	require.NoError(t, err)

	cache.StoreErr = errors.New("redis timeout")
	u, err := svc.Record(ctx, "user-1", now, 700)
	require.NoError(t, err)
	assert.True(t, u.LimitReached)

	stored, err := repo.Get(ctx, "user-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(700), stored.TotalSeconds)

	_, err = cache.Get(ctx, "user-1", "2026-03-01")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "stale cached record must be dropped")

	_, err = svc.CheckQuota(ctx, "user-1")
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
}

func TestService_QuotaGateTrustsLimitReachedFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, _, cache := newTestService(t, now)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, &usage.DailyUsage{
		UserID:       "user-1",
		Date:         "2026-03-01",
		TotalSeconds: 100,
		SessionCount: 1,
		LimitSeconds: 600,
		LimitReached: true,
		UpdatedAt:    now,
	}, time.Hour))

	u, err := svc.CheckQuota(ctx, "user-1")
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	require.NotNil(t, u)
	assert.Equal(t, int64(100), u.TotalSeconds)
}
