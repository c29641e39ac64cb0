package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicebroker/internal/metrics"
	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// DefaultShutdownTimeout bounds how long Stop waits for in-flight iterations
const DefaultShutdownTimeout = 30 * time.Second

// resultRecorder is implemented by workers embedding BaseWorker
type resultRecorder interface {
	RecordResult(at time.Time, err error)
}

// Scheduler runs each registered worker on its own ticker
type Scheduler struct {
	workers         []Worker
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	log             *logger.Logger
	shutdownTimeout time.Duration
	started         bool
}

// NewScheduler creates a new worker scheduler
func NewScheduler(shutdownTimeout time.Duration) *Scheduler {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Scheduler{
		log:             logger.Get().With("component", "scheduler"),
		shutdownTimeout: shutdownTimeout,
	}
}

// RegisterWorker adds a worker. Registration after Start is ignored.
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval())
}

// Start launches every enabled worker. Each runs once immediately, then on its interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, worker := range s.workers {
		if !worker.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", worker.Name())
			continue
		}

		s.wg.Add(1)
		go s.runWorker(worker)
	}

	s.log.Infow("Workers started", "count", len(s.workers))
	return nil
}

// Stop cancels all workers and waits for in-flight iterations up to the shutdown timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	s.log.Info("Stopping worker scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All workers stopped gracefully")
	case <-time.After(s.shutdownTimeout):
		s.log.Warnw("Worker shutdown timed out", "timeout", s.shutdownTimeout)
		shutdownErr = errors.Wrapf(errors.ErrTimeout, "worker shutdown after %s", s.shutdownTimeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

func (s *Scheduler) runWorker(worker Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(worker.Interval())
	defer ticker.Stop()

	s.executeWorker(worker)

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("Worker stopping", "worker", worker.Name())
			return
		case <-ticker.C:
			s.executeWorker(worker)
		}
	}
}

func (s *Scheduler) executeWorker(worker Worker) {
	start := time.Now()

	err := s.safeRun(worker)
	duration := time.Since(start)

	metrics.RecordWorkerExecution(worker.Name(), duration, err)
	if rec, ok := worker.(resultRecorder); ok {
		rec.RecordResult(start, err)
	}

	if err != nil {
		s.log.Errorw("Worker execution failed",
			"worker", worker.Name(),
			"error", err,
			"duration", duration,
		)
		return
	}
	s.log.Debugw("Worker execution completed", "worker", worker.Name(), "duration", duration)
}

func (s *Scheduler) safeRun(worker Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "worker panicked: %s", fmt.Sprint(r))
		}
	}()
	return worker.Run(s.ctx)
}

// GetWorkers returns the registered workers
func (s *Scheduler) GetWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	return workers
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
