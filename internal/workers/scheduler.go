package workers

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"gapsentry/internal/metrics"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Scheduler manages and coordinates multiple workers
type Scheduler struct {
	workers []Worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	log     *logger.Logger
	started bool
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		workers: make([]Worker, 0),
		log:     logger.Get().With("component", "scheduler"),
	}
}

// RegisterWorker adds a worker to the scheduler
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

// Start begins running all registered, enabled workers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	s.log.Infow("Starting worker scheduler", "workers", len(workers))

	for _, w := range workers {
		if !w.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", w.Name())
			continue
		}
		s.wg.Add(1)
		go s.runWorker(w)
	}
	return nil
}

// Stop cancels all workers and waits for in-flight runs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	s.log.Infow("Stopping worker scheduler")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Infow("All workers stopped gracefully")
	case <-ctx.Done():
		s.log.Warnw("Worker shutdown timed out")
		shutdownErr = errors.Wrap(errors.ErrTimeout, "worker shutdown")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

func (s *Scheduler) runWorker(w Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	// Run immediately on start
	s.executeWorker(w)

	for {
		select {
		case <-s.ctx.Done():
			s.log.Infow("Worker stopping", "worker", w.Name())
			return
		case <-ticker.C:
			s.executeWorker(w)
		}
	}
}

type runRecorder interface {
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
	RecordSkip()
}

// executeWorker runs one iteration, isolating panics and recording health.
// ErrCycleTooSoon marks a poll with nothing due and is not a failure.
func (s *Scheduler) executeWorker(w Worker) {
	start := time.Now()
	rec, _ := w.(runRecorder)

	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("worker panic: %v", r)
			s.log.Errorw("Worker panicked", "worker", w.Name(), "panic", r, "stack", string(debug.Stack()))
			metrics.RecordWorkerExecution(w.Name(), time.Since(start), err)
			if rec != nil {
				rec.RecordError(err, time.Since(start))
			}
		}
	}()

	err := w.Run(s.ctx)
	took := time.Since(start)

	switch {
	case errors.Is(err, errors.ErrCycleTooSoon):
		metrics.RecordWorkerSkip(w.Name())
		if rec != nil {
			rec.RecordSkip()
		}
	case err != nil:
		s.log.Errorw("Worker execution failed", "worker", w.Name(), "error", err, "duration", took)
		metrics.RecordWorkerExecution(w.Name(), took, err)
		if rec != nil {
			rec.RecordError(err, took)
		}
	default:
		s.log.Debugw("Worker execution completed", "worker", w.Name(), "duration", took)
		metrics.RecordWorkerExecution(w.Name(), took, nil)
		if rec != nil {
			rec.RecordRun(took)
		}
	}
}

// Health returns the health of every worker that reports it
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if hw, ok := w.(WorkerWithHealth); ok {
			out[w.Name()] = hw.Health()
		}
	}
	return out
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
