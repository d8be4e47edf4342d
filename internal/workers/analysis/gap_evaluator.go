package analysis

import (
	"context"
	"sync"
	"time"

	"gapsentry/internal/domain/decision"
	"gapsentry/internal/workers"
	"gapsentry/pkg/errors"
)

// Evaluator runs one decision cycle over a symbol list
type Evaluator interface {
	EvaluateAll(ctx context.Context, symbols []string) []decision.Decision
}

// GapEvaluatorConfig configures the evaluation worker
type GapEvaluatorConfig struct {
	Symbols []string

	// Cadence is the minimum wall-clock time between completed cycles
	Cadence time.Duration

	// PollInterval is how often the scheduler asks whether a cycle is due
	PollInterval time.Duration

	// Timeout bounds one full cycle over all symbols (0 disables)
	Timeout time.Duration

	Enabled bool
}

// GapEvaluator triggers decision cycles on a minimum-interval cadence. It is
// polled more often than the cadence and returns errors.ErrCycleTooSoon until
// Cadence has elapsed since the last completed cycle.
type GapEvaluator struct {
	*workers.BaseWorker
	evaluator Evaluator
	symbols   []string
	cadence   time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu            sync.Mutex
	lastCompleted time.Time
}

// NewGapEvaluator creates the evaluation worker
func NewGapEvaluator(evaluator Evaluator, cfg GapEvaluatorConfig) *GapEvaluator {
	poll := cfg.PollInterval
	if poll <= 0 || (cfg.Cadence > 0 && poll > cfg.Cadence) {
		poll = cfg.Cadence
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &GapEvaluator{
		BaseWorker: workers.NewBaseWorker("gap_evaluator", poll, cfg.Enabled),
		evaluator:  evaluator,
		symbols:    cfg.Symbols,
		cadence:    cfg.Cadence,
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// LastCompleted returns when the last cycle finished (zero before the first)
func (w *GapEvaluator) LastCompleted() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCompleted
}

// due reports whether a new cycle may start at now
func (w *GapEvaluator) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCompleted.IsZero() || now.Sub(w.lastCompleted) >= w.cadence
}

// Run executes one cycle if the cadence allows it
func (w *GapEvaluator) Run(ctx context.Context) error {
	if !w.due(w.now()) {
		return errors.ErrCycleTooSoon
	}
	if len(w.symbols) == 0 {
		w.Log().Warnw("No symbols configured for evaluation")
		return nil
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := w.now()
	decisions := w.evaluator.EvaluateAll(ctx, w.symbols)
	complete := len(decisions) >= len(w.symbols)

	// a cut-short cycle leaves the cadence clock alone so the next poll retries
	if complete {
		w.mu.Lock()
		w.lastCompleted = w.now()
		w.mu.Unlock()
	}

	counts := make(map[decision.Status]int, 8)
	for _, d := range decisions {
		counts[d.Status]++
	}
	w.Log().Infow("Evaluation cycle complete",
		"symbols", len(w.symbols),
		"evaluated", len(decisions),
		"allowed", counts[decision.StatusAllowed]+counts[decision.StatusOrderPlaced]+counts[decision.StatusOrderFailed],
		"blocked", counts[decision.StatusBlocked],
		"no_signal", counts[decision.StatusNoSignal],
		"skipped", counts[decision.StatusSkipped],
		"duration", w.now().Sub(start),
	)

	if !complete {
		cause := ctx.Err()
		if cause == nil {
			cause = errors.ErrInternal
		}
		return errors.Wrapf(cause, "cycle cut short after %d of %d symbols", len(decisions), len(w.symbols))
	}
	return nil
}
