package decision

import (
	"context"
	"time"

	"gapsentry/internal/domain/gap"
	"gapsentry/internal/domain/market_data"
	"gapsentry/internal/ml/features"
	"gapsentry/internal/ml/labeling"
	"gapsentry/internal/tools/smc"
	"gapsentry/pkg/errors"
)

// ReplayConfig describes one historical warm-start pass over a single timeframe
type ReplayConfig struct {
	Symbol    string
	Timeframe market_data.Timeframe
	TickSize  float64
	// SpreadTicks stands in for the historical spread, which bars do not carry
	SpreadTicks     float64
	StopBufferTicks float64
	RiskReward      float64
	LookaheadBars   int
	MinHistory      int // bars required behind the cursor; Default: 3
	Stride          int // bars advanced per step; Default: 1
}

// ReplayStats summarizes a replay
type ReplayStats struct {
	Windows    int
	Gaps       int
	Wins       int
	Losses     int
	Degenerate int
	Correct    int // predictions on the right side of 0.5 before the update
}

// Accuracy is the share of gaps the model called correctly before learning them
func (s ReplayStats) Accuracy() float64 {
	if s.Gaps == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Gaps)
}

// Replay walks a most-recent-first series from the oldest usable bar to the
// newest, treating each cursor position as "now" exactly like a live cycle:
// the close of the cursor bar is the mid, the latest gap containing it is
// planned, simulated and learned. Each gap is learned once, the first time it
// qualifies. trend may be nil.
func Replay(
	ctx context.Context,
	cfg ReplayConfig,
	series, trend []market_data.Bar,
	builder *features.Builder,
	model Model,
) (ReplayStats, error) {
	var stats ReplayStats

	if cfg.TickSize <= 0 {
		return stats, errors.Wrapf(errors.ErrInvalidInput, "tick size must be positive, got %v", cfg.TickSize)
	}
	if cfg.MinHistory < 3 {
		cfg.MinHistory = 3
	}
	if cfg.Stride <= 0 {
		cfg.Stride = 1
	}

	learned := make(map[time.Time]struct{})
	params := PlanParams{StopBufferTicks: cfg.StopBufferTicks, RiskReward: cfg.RiskReward}

	for at := len(series) - cfg.MinHistory; at >= 0; at -= cfg.Stride {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Windows++

		history := series[at:]
		now := history[0]
		g, ok := smc.LatestContaining(smc.DetectFVG(history, cfg.Timeframe), now.Close)
		if !ok {
			continue
		}
		if _, seen := learned[g.FormedAt]; seen {
			continue
		}
		learned[g.FormedAt] = struct{}{}

		plan, err := BuildPlan(cfg.Symbol, g, now.Close, cfg.TickSize, params)
		if err != nil {
			stats.Degenerate++
			continue
		}

		x := builder.Build(features.Input{
			Symbol:       cfg.Symbol,
			Tier:         g.Timeframe.Tier,
			GapSize:      g.Size(),
			SpreadTicks:  cfg.SpreadTicks,
			RecentVolume: now.Volume,
			TrendSeries:  trendAsOf(trend, now.OpenTime),
			At:           now.OpenTime,
		})

		// Labelled from the bars between formation and now, exactly as the live
		// engine does, even though series[:at] holds later bars. Using them
		// would train on labels the live model never sees.
		forward := labeling.ForwardBars(history, g.Index, cfg.LookaheadBars)
		outcome := labeling.SimulatePlan(forward, plan, cfg.LookaheadBars)

		stats.Gaps++
		if outcome == gap.Win {
			stats.Wins++
		} else {
			stats.Losses++
		}
		if (model.Predict(x) >= 0.5) == (outcome == gap.Win) {
			stats.Correct++
		}

		if _, err := model.Update(ctx, x, outcome.Label()); err != nil {
			return stats, errors.Wrapf(err, "update at %s", now.OpenTime.Format(time.RFC3339))
		}
	}

	return stats, nil
}

// trendAsOf drops trend bars that opened after t so the replay never sees the future
func trendAsOf(trend []market_data.Bar, t time.Time) []market_data.Bar {
	for i, b := range trend {
		if !b.OpenTime.After(t) {
			return trend[i:]
		}
	}
	return nil
}
