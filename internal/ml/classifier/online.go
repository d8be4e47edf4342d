package classifier

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	domain "gapsentry/internal/domain/classifier"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// PersistenceObserver is notified after every load or save attempt
type PersistenceObserver func(op string, state domain.State, err error)

// Online is a logistic regression trained one sample at a time with
// stochastic gradient ascent on the log-likelihood.
//
// One instance is shared by every symbol. Predict takes a read lock; Update
// holds the write lock across the weight step and the blocking Save so
// persisted states are written in update order. The observer runs after the
// lock is released and may be called concurrently.
type Online struct {
	mu           sync.RWMutex
	state        domain.State
	learningRate float64
	store        domain.Store
	observer     PersistenceObserver
	log          *logger.Logger
	now          func() time.Time
}

// Config configures the online classifier
type Config struct {
	LearningRate float64
	Store        domain.Store // nil disables persistence
	Observer     PersistenceObserver
}

// NewOnline creates a zero-initialized classifier (p = 0.5 everywhere)
func NewOnline(cfg Config) *Online {
	return &Online{
		learningRate: cfg.LearningRate,
		store:        cfg.Store,
		observer:     cfg.Observer,
		log:          logger.Get().With("component", "online_classifier"),
		now:          time.Now,
	}
}

// Restore loads persisted state. An absent state keeps the zero model; any
// other failure is returned but the in-memory model stays usable.
func (o *Online) Restore(ctx context.Context) error {
	if o.store == nil {
		return nil
	}

	o.mu.Lock()
	st, err := o.store.Load(ctx)
	if err == nil {
		o.state = *st
	}
	snapshot := o.state
	o.mu.Unlock()

	switch {
	case errors.Is(err, errors.ErrNotFound):
		o.log.Infow("No persisted classifier state, starting from zero weights")
		o.notify("load", snapshot, nil)
		return nil
	case err != nil:
		o.notify("load", snapshot, err)
		return fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}

	o.notify("load", snapshot, nil)
	o.log.Infow("Classifier state restored", "samples", snapshot.SampleCount, "bias", snapshot.Bias)
	return nil
}

// Predict returns sigmoid(w·x + b)
func (o *Online) Predict(x domain.FeatureVector) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return predict(o.state, x)
}

// SampleCount returns how many labels the model has learned from
func (o *Online) SampleCount() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.SampleCount
}

// Snapshot returns a copy of the current state
func (o *Online) Snapshot() domain.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Update applies one gradient step toward label (0 or 1) and persists the
// new state. A persistence failure is returned after the in-memory update
// has been kept.
func (o *Online) Update(ctx context.Context, x domain.FeatureVector, label float64) (domain.State, error) {
	if label != 0 && label != 1 {
		return o.Snapshot(), errors.Wrapf(errors.ErrInvalidInput, "label must be 0 or 1, got %v", label)
	}

	o.mu.Lock()
	errTerm := label - predict(o.state, x)
	for i := range o.state.Weights {
		o.state.Weights[i] += o.learningRate * errTerm * x[i]
	}
	o.state.Bias += o.learningRate * errTerm
	o.state.SampleCount++
	o.state.UpdatedAt = o.now()

	snapshot := o.state

	if o.store == nil {
		o.mu.Unlock()
		return snapshot, nil
	}

	err := o.store.Save(ctx, snapshot)
	o.mu.Unlock()

	o.notify("save", snapshot, err)
	if err != nil {
		return snapshot, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	return snapshot, nil
}

func (o *Online) notify(op string, st domain.State, err error) {
	if o.observer != nil {
		o.observer(op, st, err)
	}
}

func predict(st domain.State, x domain.FeatureVector) float64 {
	z := st.Bias
	for i, w := range st.Weights {
		z += w * x[i]
	}
	return 1 / (1 + math.Exp(-z))
}
