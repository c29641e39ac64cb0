package usage

import (
	"context"
	"time"
)

// Repository is the durable quota store.
// Implementation is in internal/repository/postgres/usage_repository.go
type Repository interface {
	// Get returns errors.ErrNotFound when the user has no record for day
	Get(ctx context.Context, userID, day string) (*DailyUsage, error)

	// Increment atomically adds deltaSeconds and one session to the day record,
	// creating it with limitSeconds when missing, and returns the new state
	Increment(ctx context.Context, userID, day string, deltaSeconds, limitSeconds int64) (*DailyUsage, error)

	// CountLimitReached returns how many users exhausted their quota on day
	CountLimitReached(ctx context.Context, day string) (int64, error)
}

// Cache is the read-through usage cache.
// Implementation is in internal/repository/redis/usage_cache.go
type Cache interface {
	// Get returns errors.ErrNotFound on a miss
	Get(ctx context.Context, userID, day string) (*DailyUsage, error)

	// Store writes u unless the cached record already has a higher total
	Store(ctx context.Context, u *DailyUsage, ttl time.Duration) error

	// Delete drops the cached record so the next read goes to the store
	Delete(ctx context.Context, userID, day string) error
}
