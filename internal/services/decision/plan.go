package decision

import (
	"gapsentry/internal/domain/gap"
	"gapsentry/pkg/errors"
)

// PlanParams sizes protective levels around a gap
type PlanParams struct {
	StopBufferTicks float64
	RiskReward      float64
}

// BuildPlan derives stop and target from gap geometry and the current mid.
//
// Bullish: stop sits below the band, target mid + rr*risk.
// Bearish: stop sits above the band, target mid - rr*risk.
// ErrDegenerateGeometry is returned when the stop leaves no positive risk.
func BuildPlan(symbol string, g gap.Gap, mid, tickSize float64, p PlanParams) (gap.TradePlan, error) {
	buffer := p.StopBufferTicks * tickSize

	plan := gap.TradePlan{
		Symbol:     symbol,
		Direction:  g.Direction,
		EntryPrice: mid,
	}

	switch g.Direction {
	case gap.Bullish:
		plan.StopPrice = g.LowerBound - buffer
		risk := mid - plan.StopPrice
		if risk <= 0 {
			return plan, errors.Wrapf(errors.ErrDegenerateGeometry, "bullish risk %.8f", risk)
		}
		plan.TargetPrice = mid + p.RiskReward*risk
	case gap.Bearish:
		plan.StopPrice = g.UpperBound + buffer
		risk := plan.StopPrice - mid
		if risk <= 0 {
			return plan, errors.Wrapf(errors.ErrDegenerateGeometry, "bearish risk %.8f", risk)
		}
		plan.TargetPrice = mid - p.RiskReward*risk
	default:
		return plan, errors.Wrapf(errors.ErrInvalidInput, "direction %d", g.Direction)
	}

	return plan, nil
}
