package clickhouse

import (
	"context"
	"sync"
	"time"

	"gapsentry/pkg/logger"
)

// FlushFunc performs the actual INSERT for one batch of rows
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter accumulates rows in memory and flushes them to ClickHouse in
// batches. Rows are flushed when the buffer is full, when the ticker fires,
// or on Stop.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	buffer    []T
	mu        sync.Mutex
	log       *logger.Logger

	maxBatchSize int
	maxAge       time.Duration
	tableName    string

	lastFlush time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool

	flushed uint64
	failed  uint64
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &BatchWriter[T]{
		flushFunc:    cfg.FlushFunc,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		tableName:    cfg.TableName,
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          logger.Get().With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush ticker
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.ticker = time.NewTicker(bw.maxAge)
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infow("Batch writer started", "max_batch_size", bw.maxBatchSize, "max_age", bw.maxAge)
}

// Add buffers a row, flushing immediately once the buffer is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	full := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if full {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered rows
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

	// Flush outside of lock to avoid blocking Add() calls
	start := time.Now()
	err := bw.flushFunc(ctx, batch)
	took := time.Since(start)

	bw.mu.Lock()
	if err != nil {
		bw.failed += uint64(len(batch))
	} else {
		bw.flushed += uint64(len(batch))
	}
	bw.mu.Unlock()

	if err != nil {
		bw.log.Errorw("Batch flush failed", "rows", len(batch), "took", took, "error", err)
		return err
	}

	bw.log.Debugw("Batch flushed", "rows", len(batch), "took", took)
	return nil
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush()
			return

		case <-bw.stopCh:
			bw.finalFlush()
			return

		case <-bw.ticker.C:
			if bw.BufferSize() > 0 {
				if err := bw.Flush(ctx); err != nil {
					bw.log.Warnw("Periodic flush failed", "error", err)
				}
			}
		}
	}
}

func (bw *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bw.Flush(ctx); err != nil {
		bw.log.Warnw("Final flush failed", "error", err)
	}
}

// Stop gracefully shuts down the batch writer.
// It flushes any remaining rows and waits for completion.
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return bw.Flush(ctx)
	}
	bw.running = false
	bw.mu.Unlock()

	bw.ticker.Stop()
	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Infow("Batch writer stopped")
		return nil
	case <-ctx.Done():
		bw.log.Warnw("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the current buffer size
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// BatchWriterStats is a point-in-time view of a writer
type BatchWriterStats struct {
	BufferSize   int
	Flushed      uint64
	Failed       uint64
	LastFlushAge time.Duration
	Running      bool
}

// Stats returns current statistics
func (bw *BatchWriter[T]) Stats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Flushed:      bw.flushed,
		Failed:       bw.failed,
		LastFlushAge: time.Since(bw.lastFlush),
		Running:      bw.running,
	}
}
