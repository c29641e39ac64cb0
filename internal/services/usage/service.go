package usage

import (
	"context"
	"time"

	"voicebroker/internal/domain/usage"
	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Service owns daily quota reads, the quota gate and end-of-session accounting.
// The durable store is the source of truth; the cache is read-through and monotonic.
type Service struct {
	repo         usage.Repository
	cache        usage.Cache
	calendar     *usage.Calendar
	limitSeconds int64
	cacheTTL     time.Duration
	log          *logger.Logger
}

// NewService creates a new usage service
func NewService(
	repo usage.Repository,
	cache usage.Cache,
	calendar *usage.Calendar,
	limitSeconds int64,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:         repo,
		cache:        cache,
		calendar:     calendar,
		limitSeconds: limitSeconds,
		cacheTTL:     cacheTTL,
		log:          log.With("component", "usage_service"),
	}
}

// Calendar returns the reference-timezone calendar used for day keys
func (s *Service) Calendar() *usage.Calendar {
	return s.calendar
}

// GetDailyUsage returns today's record for userID: cache, then durable store, then a
// zero record that is materialized in the cache only.
func (s *Service) GetDailyUsage(ctx context.Context, userID string) (*usage.DailyUsage, error) {
	return s.getForDay(ctx, userID, s.calendar.Today())
}

func (s *Service) getForDay(ctx context.Context, userID, day string) (*usage.DailyUsage, error) {
	u, err := s.cache.Get(ctx, userID, day)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		s.log.Warnw("Usage cache read failed, falling back to store", "user_id", userID, "error", err)
	}

	u, err = s.repo.Get(ctx, userID, day)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrNotFound):
		u = usage.Zero(userID, day, s.limitSeconds)
		u.UpdatedAt = s.calendar.Now()
	default:
		return nil, errors.Join(errors.ErrUnavailable, errors.Wrap(err, "load daily usage"))
	}

	if err := s.cache.Store(ctx, u, s.cacheTTL); err != nil {
		s.log.Warnw("Failed to cache daily usage", "user_id", userID, "error", err)
	}

	return u, nil
}

// CheckQuota returns today's record, or errors.ErrQuotaExceeded once the limit is reached
func (s *Service) CheckQuota(ctx context.Context, userID string) (*usage.DailyUsage, error) {
	u, err := s.GetDailyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.LimitReached || u.Exhausted() {
		return u, errors.Wrapf(errors.ErrQuotaExceeded, "user %s used %d of %d seconds", userID, u.TotalSeconds, u.LimitSeconds)
	}
	return u, nil
}

// Record accounts seconds to the day containing at. The increment is one atomic upsert;
// its failure is surfaced as errors.ErrPersistenceDegraded.
func (s *Service) Record(ctx context.Context, userID string, at time.Time, seconds int64) (*usage.DailyUsage, error) {
	day := s.calendar.Day(at)

	u, err := s.repo.Increment(ctx, userID, day, seconds, s.limitSeconds)
	if err != nil {
		metrics.RecordPersistenceDegraded("usage.increment")
		return nil, errors.Join(errors.ErrPersistenceDegraded, errors.Wrapf(err, "increment usage for user %s on %s", userID, day))
	}

	if err := s.cache.Store(ctx, u, s.cacheTTL); err != nil {
		// a lower cached total would keep the gate open
		s.log.Warnw("Failed to cache usage after increment, invalidating", "user_id", userID, "day", day, "error", err)
		if err := s.cache.Delete(ctx, userID, day); err != nil {
			s.log.Errorw("Failed to invalidate cached usage", "user_id", userID, "day", day, "error", err)
		}
	}

	if u.LimitReached && u.TotalSeconds-seconds < u.LimitSeconds {
		s.log.Infow("User reached daily limit", "user_id", userID, "day", day, "total_seconds", u.TotalSeconds)
	}

	return u, nil
}

// CountLimitReached returns how many users exhausted today's quota
func (s *Service) CountLimitReached(ctx context.Context, day string) (int64, error) {
	return s.repo.CountLimitReached(ctx, day)
}
