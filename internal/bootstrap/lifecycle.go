package bootstrap

import (
	"context"
	"reflect"
	"sync"
	"time"

	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

// Closer is anything holding a connection that must be released on shutdown
type Closer interface {
	Close() error
}

// HTTPShutdowner stops accepting requests and drains in-flight ones
type HTTPShutdowner interface {
	Shutdown(ctx context.Context) error
}

// Stopper stops background workers
type Stopper interface {
	Stop() error
}

// ShutdownTargets lists the components Shutdown stops, in the order they are stopped.
// Nil entries are skipped.
type ShutdownTargets struct {
	WG              *sync.WaitGroup
	Cancel          context.CancelFunc
	HTTPServer      HTTPShutdowner
	WorkerScheduler Stopper
	KafkaProducer   Closer
	ErrorTracker    errors.Tracker
	Databases       map[string]Closer
}

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
	httpTimeout     time.Duration
	drainTimeout    time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
		httpTimeout:     10 * time.Second,
		drainTimeout:    10 * time.Second,
	}
}

// Shutdown stops components so that nothing writes to a store after it is closed:
// 1. HTTP server stops accepting requests and drains
// 2. Workers finish their current sweep
// 3. Context is cancelled and goroutines are awaited; consumers close their readers on exit
// 4. Producer closes after everything that publishes
// 5. Error tracker and logs are flushed
// 6. Database connections last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/6] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, l.httpTimeout)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/6] Stopping background workers...")
	if t.WorkerScheduler != nil {
		if err := t.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	log.Info("[3/6] Waiting for background goroutines...")
	if t.Cancel != nil {
		t.Cancel()
	}
	if t.WG != nil {
		l.waitForGoroutines(t.WG, l.drainTimeout, log)
	}

	log.Info("[4/6] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[5/6] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	_ = logger.Sync()

	log.Info("[6/6] Closing database connections...")
	l.closeDatabases(t.Databases, log)

	log.Info("✅ Graceful shutdown complete")
}

func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

func (l *Lifecycle) closeDatabases(dbs map[string]Closer, log *logger.Logger) {
	var errs errors.MultiError
	for name, db := range dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			errs.Add(errors.Wrap(err, name))
		}
	}

	if errs.HasErrors() {
		log.Errorw("Database close errors", "errors", errs.Errors)
		return
	}
	log.Info("✓ Database connections closed")
}

// closerOrNil turns a typed nil pointer into an untyped nil interface
func closerOrNil(c Closer) Closer {
	if c == nil {
		return nil
	}
	if v := reflect.ValueOf(c); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil
	}
	return c
}
