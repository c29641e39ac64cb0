package clickhouse

import (
	"context"
	"sync"
	"time"

	"voicebroker/pkg/logger"
)

// FlushFunc performs the actual INSERT for one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter accumulates rows in memory and flushes them in batches.
// ClickHouse handles single-row inserts poorly, so analytics rows always go through here.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	buffer    []T
	mu        sync.Mutex
	log       *logger.Logger

	maxBatchSize  int
	maxBufferSize int
	maxAge        time.Duration
	tableName     string

	lastFlush time.Time
	dropped   int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
	// MaxBufferSize bounds rows kept after failed flushes. Default: 10 * MaxBatchSize
	MaxBufferSize int
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.MaxBufferSize < cfg.MaxBatchSize {
		cfg.MaxBufferSize = cfg.MaxBatchSize * 10
	}

	return &BatchWriter[T]{
		flushFunc:     cfg.FlushFunc,
		buffer:        make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize:  cfg.MaxBatchSize,
		maxBufferSize: cfg.MaxBufferSize,
		maxAge:        cfg.MaxAge,
		tableName:     cfg.TableName,
		lastFlush:     time.Now(),
		stopCh:        make(chan struct{}),
		log:           logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush loop
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infow("Batch writer started", "max_batch_size", bw.maxBatchSize, "max_age", bw.maxAge)
}

// Add buffers a row and flushes when the batch is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	shouldFlush := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if shouldFlush {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered rows. On failure the rows are put back (bounded by MaxBufferSize)
// so the next flush retries them.
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}

	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	start := time.Now()
	err := bw.flushFunc(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		bw.requeue(batch)
		bw.log.Errorw("Batch flush failed",
			"rows", len(batch),
			"duration", duration,
			"error", err,
		)
		return err
	}

	bw.log.Debugw("Batch flushed", "rows", len(batch), "duration", duration)
	return nil
}

func (bw *BatchWriter[T]) requeue(batch []T) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	merged := append(batch, bw.buffer...)
	if overflow := len(merged) - bw.maxBufferSize; overflow > 0 {
		// oldest rows go first
		merged = merged[overflow:]
		bw.dropped += overflow
	}
	bw.buffer = merged
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush()
			return

		case <-bw.stopCh:
			bw.finalFlush()
			return

		case <-ticker.C:
			if bw.BufferSize() > 0 {
				_ = bw.Flush(ctx)
			}
		}
	}
}

func (bw *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := bw.Flush(ctx); err != nil {
		bw.log.Warnw("Final flush failed, rows lost", "rows", bw.BufferSize(), "error", err)
	}
}

// Stop flushes any remaining rows and waits for the loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return bw.Flush(ctx)
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("Batch writer stopped")
		return nil
	case <-ctx.Done():
		bw.log.Warn("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the number of rows waiting to be flushed
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterStats describes the writer state
type BatchWriterStats struct {
	BufferSize   int
	Dropped      int
	LastFlushAge time.Duration
	Running      bool
}

// GetStats returns current statistics
func (bw *BatchWriter[T]) GetStats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Dropped:      bw.dropped,
		LastFlushAge: time.Since(bw.lastFlush),
		Running:      bw.running,
	}
}
