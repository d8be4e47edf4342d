package labeling

import (
	"math"

	"gapsentry/internal/domain/gap"
	"gapsentry/internal/domain/market_data"
)

// Simulate replays forward bars (chronological, index 0 is the first bar
// after entry) and reports whether target or stop is reached first.
//
// Direction follows from the levels: target above entry is a long, below is
// a short. When one bar touches both levels the level closer to entry is
// taken as hit first; equal distances resolve to the stop. Running out of
// bars before either level is touched counts as a loss.
func Simulate(forward []market_data.Bar, entry, stop, target float64, maxLookahead int) gap.Outcome {
	long := target > entry

	n := len(forward)
	if maxLookahead >= 0 && maxLookahead < n {
		n = maxLookahead
	}

	for i := 0; i < n; i++ {
		b := forward[i]

		var hitTarget, hitStop bool
		if long {
			hitTarget = b.High >= target
			hitStop = b.Low <= stop
		} else {
			hitTarget = b.Low <= target
			hitStop = b.High >= stop
		}

		switch {
		case hitTarget && hitStop:
			if math.Abs(target-entry) < math.Abs(stop-entry) {
				return gap.Win
			}
			return gap.Loss
		case hitTarget:
			return gap.Win
		case hitStop:
			return gap.Loss
		}
	}

	return gap.Loss
}

// SimulatePlan is Simulate driven by a trade plan
func SimulatePlan(forward []market_data.Bar, plan gap.TradePlan, maxLookahead int) gap.Outcome {
	return Simulate(forward, plan.EntryPrice, plan.StopPrice, plan.TargetPrice, maxLookahead)
}

// ForwardBars returns the bars strictly after offset idx of a most-recent-first
// series, ordered chronologically and capped at lookahead.
// idx 0 (pattern on the current bar) has no forward bars.
func ForwardBars(series []market_data.Bar, idx, lookahead int) []market_data.Bar {
	if idx <= 0 || idx > len(series) {
		return nil
	}

	n := idx
	if lookahead >= 0 && lookahead < n {
		n = lookahead
	}

	out := make([]market_data.Bar, 0, n)
	for i := idx - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, series[i])
	}
	return out
}
