package workers

import (
	"context"
	"time"

	redisadapter "voicebroker/internal/adapters/redis"
	"voicebroker/pkg/logger"
)

// Locker takes a named lock shared across replicas.
// release is nil when another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisLocker implements Locker on top of the redis adapter
type RedisLocker struct {
	client *redisadapter.Client
}

// NewRedisLocker creates a redis-backed locker
func NewRedisLocker(client *redisadapter.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.AcquireLock(ctx, name, ttl)
	if err != nil || lock == nil {
		return nil, err
	}
	return lock.Release, nil
}

// singleFlight runs the wrapped worker only on the replica holding its lock
type singleFlight struct {
	Worker
	locker Locker
	ttl    time.Duration
	log    *logger.Logger
}

// SingleFlight wraps w so that each iteration first takes the lock named after the worker.
// An iteration that finds the lock held elsewhere is skipped.
func SingleFlight(w Worker, locker Locker, ttl time.Duration) Worker {
	return &singleFlight{
		Worker: w,
		locker: locker,
		ttl:    ttl,
		log:    logger.Get().With("worker", w.Name()),
	}
}

func (s *singleFlight) Run(ctx context.Context) error {
	release, err := s.locker.Acquire(ctx, s.Name(), s.ttl)
	if err != nil {
		return err
	}
	if release == nil {
		return nil
	}
	// release under a fresh context so shutdown does not leave the lock held until ttl
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(ctx); err != nil {
			s.log.Warnw("Failed to release worker lock", "lock", s.Name(), "error", err)
		}
	}()

	return s.Worker.Run(ctx)
}

// RecordResult forwards to the wrapped worker so health is kept on the original
func (s *singleFlight) RecordResult(at time.Time, err error) {
	if rec, ok := s.Worker.(resultRecorder); ok {
		rec.RecordResult(at, err)
	}
}
