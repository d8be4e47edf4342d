package smc

import (
	"gapsentry/internal/domain/gap"
	"gapsentry/internal/domain/market_data"
)

// MaxGaps bounds how many gaps one series may yield. Collection stops once
// the cap is reached; later (more recent) matches are dropped.
const MaxGaps = 100

// DetectFVG finds Fair Value Gaps in a most-recent-first bar series.
//
// For every triple the older outer bar is bars[i] and the newer outer bar is
// bars[i-2]; the middle bar is the displacement candle and is not inspected.
// Bullish FVG: older.High < newer.Low. Bearish FVG: older.Low > newer.High.
//
// Triples are visited from the oldest toward the current bar, so the result
// is ordered oldest pattern first. The input is never modified.
func DetectFVG(bars []market_data.Bar, tf market_data.Timeframe) []gap.Gap {
	if len(bars) < 3 {
		return nil
	}

	fvgs := make([]gap.Gap, 0)

	for i := len(bars) - 1; i >= 2; i-- {
		if len(fvgs) >= MaxGaps {
			break
		}

		older := bars[i]
		newer := bars[i-2]

		switch {
		case older.High < newer.Low:
			fvgs = append(fvgs, newGap(gap.Bullish, older.High, newer.Low, tf, i-2, newer))
		case older.Low > newer.High:
			fvgs = append(fvgs, newGap(gap.Bearish, newer.High, older.Low, tf, i-2, newer))
		}
	}

	return fvgs
}

func newGap(dir gap.Direction, lower, upper float64, tf market_data.Timeframe, idx int, newer market_data.Bar) gap.Gap {
	return gap.Gap{
		Direction:  dir,
		LowerBound: lower,
		UpperBound: upper,
		Midpoint:   (lower + upper) / 2,
		Timeframe:  tf,
		Index:      idx,
		FormedAt:   newer.OpenTime,
	}
}

// LatestContaining walks gaps from the most recent (tail) toward the oldest
// and returns the first one whose band contains price.
func LatestContaining(gaps []gap.Gap, price float64) (gap.Gap, bool) {
	for i := len(gaps) - 1; i >= 0; i-- {
		if gaps[i].Contains(price) {
			return gaps[i], true
		}
	}
	return gap.Gap{}, false
}
