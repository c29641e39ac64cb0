package session

import (
	"context"
	"time"
)

// Repository is the durable session store. Rows are never deleted.
// Implementation is in internal/repository/postgres/session_repository.go
type Repository interface {
	Create(ctx context.Context, s *Session) error

	// GetByID returns errors.ErrSessionNotFound when no row exists
	GetByID(ctx context.Context, id string) (*Session, error)

	// UpdateProviderID sets the provider conversation id and promotes starting to active
	UpdateProviderID(ctx context.Context, id, providerConversationID string) error

	// UpdateEnd writes end time, duration and terminal status.
	// It only touches rows that are not yet terminal and reports whether one was updated.
	UpdateEnd(ctx context.Context, s *Session) (bool, error)

	ListByUser(ctx context.Context, userID string, limit int) ([]*Session, error)

	// ListNotEnded returns sessions in a non-terminal status, oldest first
	ListNotEnded(ctx context.Context, limit int) ([]*Session, error)

	// ListStale returns non-terminal sessions started before olderThan, oldest first
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*Session, error)
}

// Cache is the shared TTL store for live sessions with an active index and per-user index.
// Implementation is in internal/repository/redis/session_cache.go
type Cache interface {
	// Put writes the session and adds it to both index sets, re-arming all TTLs
	Put(ctx context.Context, s *Session, ttl time.Duration) error

	// Get returns errors.ErrSessionNotFound on a miss
	Get(ctx context.Context, id string) (*Session, error)

	// Refresh rewrites a cached session like Put, but only while it is still cached and
	// neither claimed for end nor marked ended. It reports whether it wrote.
	Refresh(ctx context.Context, s *Session, ttl time.Duration) (bool, error)

	// Evict removes the session and its index memberships
	Evict(ctx context.Context, s *Session) error

	// ListActive snapshots the active index. Dangling ids are pruned.
	ListActive(ctx context.Context) ([]*Session, error)

	// ListByUser snapshots the per-user index. Dangling ids are pruned.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// CountActive returns the cardinality of the active index
	CountActive(ctx context.Context) (int64, error)

	// ClaimEnd takes the exactly-once end claim for id; false means someone else holds it
	ClaimEnd(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// ReleaseEnd drops the claim so a failed end can be retried
	ReleaseEnd(ctx context.Context, id string) error

	// MarkEnded keeps the accounted session for ttl, long after the claim is gone
	MarkEnded(ctx context.Context, s *Session, ttl time.Duration) error

	// GetEnded returns the session stored by MarkEnded, or errors.ErrSessionNotFound
	GetEnded(ctx context.Context, id string) (*Session, error)
}
