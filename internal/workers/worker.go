package workers

import (
	"context"
	"sync"
	"time"

	"voicebroker/pkg/logger"
)

// Worker is a periodic background job driven by the Scheduler
type Worker interface {
	// Name returns the unique identifier for this worker
	Name() string

	// Run executes one iteration and returns
	Run(ctx context.Context) error

	// Interval returns how often this worker should run
	Interval() time.Duration

	// Enabled returns whether this worker is active
	Enabled() bool
}

// Health is a snapshot of a worker's run history
type Health struct {
	LastRun    time.Time
	LastError  error
	RunCount   int64
	ErrorCount int64
}

// BaseWorker provides the common fields of a worker. Embed it and implement Run.
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	mu         sync.RWMutex
	lastRun    time.Time
	lastError  error
	runCount   int64
	errorCount int64
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().With("worker", name),
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Interval() time.Duration {
	return w.interval
}

func (w *BaseWorker) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// SetEnabled toggles the worker. It takes effect on the next scheduler start.
func (w *BaseWorker) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
	w.log.Infow("Worker enabled state changed", "enabled", enabled)
}

// Log returns the worker's logger
func (w *BaseWorker) Log() *logger.Logger {
	return w.log
}

// Health returns the run history
func (w *BaseWorker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		LastRun:    w.lastRun,
		LastError:  w.lastError,
		RunCount:   w.runCount,
		ErrorCount: w.errorCount,
	}
}

// RecordResult stores the outcome of one iteration
func (w *BaseWorker) RecordResult(at time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRun = at
	w.lastError = err
	w.runCount++
	if err != nil {
		w.errorCount++
	}
}
