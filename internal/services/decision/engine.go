package decision

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"

	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/domain/classifier"
	domain "gapsentry/internal/domain/decision"
	"gapsentry/internal/domain/gap"
	"gapsentry/internal/domain/market_data"
	"gapsentry/internal/metrics"
	"gapsentry/internal/ml/features"
	"gapsentry/internal/ml/labeling"
	"gapsentry/internal/reporting"
	"gapsentry/internal/tools/smc"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Model is the shared online classifier as seen by the engine
type Model interface {
	Predict(x classifier.FeatureVector) float64
	Update(ctx context.Context, x classifier.FeatureVector, label float64) (classifier.State, error)
	SampleCount() int64
}

// Config holds the gating, geometry and learning knobs of one engine
type Config struct {
	Timeframes    []market_data.Timeframe // evaluated in order; first qualifying timeframe wins
	TrendInterval string
	BarsPerFetch  int

	TradeSize         float64
	RiskReward        float64
	StopBufferTicks   float64
	MaxSpreadTicks    float64
	OneTradePerSymbol bool
	LiveTrading       bool

	ClassifierEnabled bool
	OnlineLearning    bool
	Threshold         float64
	WarmupSamples     int64
	LookaheadBars     int
}

// DefaultTimeframes returns the fine, medium and coarse tiers
func DefaultTimeframes(fine, medium, coarse string) []market_data.Timeframe {
	return []market_data.Timeframe{
		{Interval: fine, Tier: market_data.TierFine},
		{Interval: medium, Tier: market_data.TierMedium},
		{Interval: coarse, Tier: market_data.TierCoarse},
	}
}

// Engine runs one detect, score, gate, simulate and learn pass per symbol
type Engine struct {
	cfg      Config
	market   exchanges.MarketData
	exec     exchanges.Execution // nil disables order placement
	model    Model
	features *features.Builder
	reporter reporting.Reporter
	log      *logger.Logger
	now      func() time.Time
}

// NewEngine creates a decision engine
func NewEngine(
	cfg Config,
	market exchanges.MarketData,
	exec exchanges.Execution,
	model Model,
	builder *features.Builder,
	reporter reporting.Reporter,
) *Engine {
	if cfg.BarsPerFetch <= 0 {
		cfg.BarsPerFetch = 200
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = DefaultTimeframes("5m", "15m", "1h")
	}
	return &Engine{
		cfg:      cfg,
		market:   market,
		exec:     exec,
		model:    model,
		features: builder,
		reporter: reporter,
		log:      logger.Get().With("component", "decision_engine"),
		now:      time.Now,
	}
}

// EvaluateAll evaluates every symbol in turn. A failure or panic in one
// symbol never prevents the others from being evaluated.
func (e *Engine) EvaluateAll(ctx context.Context, symbols []string) []domain.Decision {
	out := make([]domain.Decision, 0, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		out = append(out, e.Evaluate(ctx, symbol))
	}
	return out
}

// Evaluate runs one cycle for symbol and reports the resulting decision
func (e *Engine) Evaluate(ctx context.Context, symbol string) (d domain.Decision) {
	d = domain.Decision{Symbol: symbol, EvaluatedAt: e.now().UTC()}

	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("Panic while evaluating symbol",
				"symbol", symbol,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			d.Status = domain.StatusSkipped
			d.Reason = fmt.Sprintf("panic: %v", r)
		}
		metrics.RecordDecision(symbol, string(d.Status))
		if e.reporter != nil {
			e.reporter.ReportDecision(ctx, d)
		}
	}()

	e.evaluate(ctx, &d)
	return d
}

func (e *Engine) evaluate(ctx context.Context, d *domain.Decision) {
	log := e.log.With("symbol", d.Symbol)

	// Tradability precondition
	info, err := e.market.ResolveSymbol(ctx, d.Symbol)
	if err != nil {
		e.skip(log, d, "symbol not resolvable", err)
		return
	}
	if !info.Tradable {
		e.skip(log, d, "symbol not trading", nil)
		return
	}

	quote, err := e.market.GetQuote(ctx, d.Symbol)
	if err != nil {
		e.skip(log, d, "quote unavailable", err)
		return
	}
	d.Mid = quote.Mid()
	d.SpreadTicks = info.SpreadTicks(*quote)
	if e.cfg.MaxSpreadTicks > 0 && d.SpreadTicks > e.cfg.MaxSpreadTicks {
		e.skip(log, d, fmt.Sprintf("%v: %.1f > %.1f ticks", errors.ErrSpreadTooWide, d.SpreadTicks, e.cfg.MaxSpreadTicks), nil)
		return
	}

	// Every timeframe must be available before anything is evaluated
	series := make([][]market_data.Bar, len(e.cfg.Timeframes))
	for i, tf := range e.cfg.Timeframes {
		bars, err := e.market.GetBars(ctx, d.Symbol, tf.Interval, e.cfg.BarsPerFetch)
		if err != nil {
			e.skip(log, d, fmt.Sprintf("bars unavailable for %s", tf.Interval), err)
			return
		}
		series[i] = bars
	}

	selected, tfIdx, ok := e.selectGap(series, d.Mid)
	if !ok {
		d.Status = domain.StatusNoSignal
		d.Reason = errors.ErrNoQualifyingGap.Error()
		return
	}
	d.Gap = &selected
	bars := series[tfIdx]

	// A missing trend series degrades to the zero vector
	trend, err := e.market.GetBars(ctx, d.Symbol, e.cfg.TrendInterval, e.cfg.BarsPerFetch)
	if err != nil {
		log.Warnw("Trend series unavailable, using neutral features", "interval", e.cfg.TrendInterval, "error", err)
		trend = nil
	}

	var recentVolume float64
	if len(bars) > 0 {
		recentVolume = bars[0].Volume
	}

	d.Features = e.features.Build(features.Input{
		Symbol:       d.Symbol,
		Tier:         selected.Timeframe.Tier,
		GapSize:      selected.Size(),
		SpreadTicks:  d.SpreadTicks,
		RecentVolume: recentVolume,
		TrendSeries:  trend,
		At:           d.EvaluatedAt,
	})
	d.Probability = e.model.Predict(d.Features)
	d.SampleCount = e.model.SampleCount()
	d.Allowed = e.allowed(d.Probability, d.SampleCount)
	metrics.RecordScore(selected.Timeframe.Interval, d.Probability)

	plan, err := BuildPlan(d.Symbol, selected, d.Mid, info.TickSize, PlanParams{
		StopBufferTicks: e.cfg.StopBufferTicks,
		RiskReward:      e.cfg.RiskReward,
	})
	if err != nil {
		d.Status = domain.StatusDegenerate
		d.Reason = err.Error()
		return
	}
	d.Plan = &plan

	if d.Allowed {
		d.Status = domain.StatusAllowed
		e.placeOrder(ctx, log, d)
	} else {
		d.Status = domain.StatusBlocked
	}

	// The simulated label trains the model whatever happened to a real order
	forward := labeling.ForwardBars(bars, selected.Index, e.cfg.LookaheadBars)
	outcome := labeling.SimulatePlan(forward, plan, e.cfg.LookaheadBars)
	d.Outcome = &outcome
	metrics.RecordOutcome(selected.Direction.String(), outcome.String())

	if e.cfg.OnlineLearning {
		st, err := e.model.Update(ctx, d.Features, outcome.Label())
		d.Learned = true
		d.SampleCount = st.SampleCount
		if err != nil {
			log.Warnw("Classifier update not persisted", "error", err)
		}
	}
}

// selectGap walks timeframes in priority order and, within each, gaps from
// the most recent toward the oldest. The first gap containing mid wins.
func (e *Engine) selectGap(series [][]market_data.Bar, mid float64) (gap.Gap, int, bool) {
	for i, tf := range e.cfg.Timeframes {
		gaps := smc.DetectFVG(series[i], tf)
		if g, ok := smc.LatestContaining(gaps, mid); ok {
			return g, i, true
		}
	}
	return gap.Gap{}, 0, false
}

// allowed applies the gating policy: the classifier cannot veto while
// disabled or still warming up.
func (e *Engine) allowed(p float64, samples int64) bool {
	if !e.cfg.ClassifierEnabled {
		return true
	}
	if samples < e.cfg.WarmupSamples {
		return true
	}
	return p >= e.cfg.Threshold
}

func (e *Engine) placeOrder(ctx context.Context, log *logger.Logger, d *domain.Decision) {
	if !e.cfg.LiveTrading || e.exec == nil {
		return
	}

	if e.cfg.OneTradePerSymbol {
		open, err := e.exec.HasOpenPosition(ctx, d.Symbol)
		if err != nil {
			d.Status = domain.StatusOrderFailed
			d.OrderError = fmt.Sprintf("position check: %v", err)
			log.Warnw("Position check failed, order not placed", "error", err)
			return
		}
		if open {
			d.Reason = "position already open"
			return
		}
	}

	side := exchanges.OrderSideBuy
	if d.Plan.Direction == gap.Bearish {
		side = exchanges.OrderSideSell
	}

	res, err := e.exec.PlaceBracketOrder(ctx, exchanges.BracketRequest{
		Symbol:      d.Symbol,
		Side:        side,
		Quantity:    decimal.NewFromFloat(e.cfg.TradeSize),
		StopPrice:   decimal.NewFromFloat(d.Plan.StopPrice),
		TargetPrice: decimal.NewFromFloat(d.Plan.TargetPrice),
	})
	if res != nil && res.Entry != nil {
		d.OrderID = res.Entry.ID
	}
	if err != nil {
		d.Status = domain.StatusOrderFailed
		d.OrderError = err.Error()
		if code := exchanges.ErrorCode(err); code != "" {
			d.OrderError = fmt.Sprintf("code %s: %v", code, err)
		}
		log.Errorw("Order placement failed", "error", err, "code", exchanges.ErrorCode(err))
		return
	}

	d.Status = domain.StatusOrderPlaced
	log.Infow("Bracket order placed",
		"order_id", d.OrderID,
		"side", string(side),
		"stop", d.Plan.StopPrice,
		"target", d.Plan.TargetPrice,
	)
}

func (e *Engine) skip(log *logger.Logger, d *domain.Decision, reason string, err error) {
	d.Status = domain.StatusSkipped
	d.Reason = reason
	if err != nil {
		d.Reason = fmt.Sprintf("%s: %v", reason, err)
		log.Warnw("Symbol skipped this cycle", "reason", reason, "error", err)
		return
	}
	log.Debugw("Symbol skipped this cycle", "reason", reason)
}
