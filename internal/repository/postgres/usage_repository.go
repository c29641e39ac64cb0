package postgres

import (
	"context"
	"database/sql"

	"voicebroker/internal/domain/usage"
	"voicebroker/pkg/errors"
)

// Compile-time check
var _ usage.Repository = (*UsageRepository)(nil)

const usageColumns = `
	user_id, to_char(usage_date, 'YYYY-MM-DD') AS usage_date, total_seconds, session_count,
	limit_seconds, limit_reached, updated_at`

// UsageRepository implements usage.Repository using PostgreSQL
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// Get returns the day record or ErrNotFound
func (r *UsageRepository) Get(ctx context.Context, userID, day string) (_ *usage.DailyUsage, err error) {
	defer track("usage.get")(&err)

	var u usage.DailyUsage
	err = r.db.GetContext(ctx, &u,
		`SELECT `+usageColumns+` FROM usage_daily WHERE user_id = $1 AND usage_date = $2::date`,
		userID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "usage %s/%s", userID, day)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get usage")
	}
	return &u, nil
}

// Increment adds one finished session in a single upsert. Concurrent increments for the
// same key serialize on the row lock, so no delta is lost.
// The limit captured on first insert is kept for the rest of the day.
func (r *UsageRepository) Increment(ctx context.Context, userID, day string, deltaSeconds, limitSeconds int64) (_ *usage.DailyUsage, err error) {
	defer track("usage.increment")(&err)

	if deltaSeconds < 0 {
		deltaSeconds = 0
	}

	query := `
		INSERT INTO usage_daily AS u (user_id, usage_date, total_seconds, session_count, limit_seconds, limit_reached, updated_at)
		VALUES ($1, $2::date, $3, 1, $4, $3 >= $4, now())
		ON CONFLICT (user_id, usage_date) DO UPDATE
		SET total_seconds = u.total_seconds + EXCLUDED.total_seconds,
			session_count = u.session_count + 1,
			limit_reached = (u.total_seconds + EXCLUDED.total_seconds) >= u.limit_seconds,
			updated_at = now()
		RETURNING ` + usageColumns

	var u usage.DailyUsage
	if err = r.db.GetContext(ctx, &u, query, userID, day, deltaSeconds, limitSeconds); err != nil {
		return nil, errors.Wrap(err, "increment usage")
	}
	return &u, nil
}

// CountLimitReached returns how many users are at their limit on day
func (r *UsageRepository) CountLimitReached(ctx context.Context, day string) (_ int64, err error) {
	defer track("usage.count_limit_reached")(&err)

	var n int64
	err = r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM usage_daily WHERE usage_date = $1::date AND limit_reached`, day)
	if err != nil {
		return 0, errors.Wrap(err, "count limit reached")
	}
	return n, nil
}
