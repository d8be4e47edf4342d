package gap

import (
	"time"

	"gapsentry/internal/domain/market_data"
)

// Direction is the side of a three-bar gap
type Direction int

const (
	Bullish Direction = iota + 1
	Bearish
)

// String returns the wire name of the direction
func (d Direction) String() string {
	switch d {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the two defined variants
func (d Direction) Valid() bool {
	return d == Bullish || d == Bearish
}

// Gap is an untouched price band left between the outer bars of a triple
type Gap struct {
	Direction  Direction
	LowerBound float64
	UpperBound float64
	Midpoint   float64
	Timeframe  market_data.Timeframe
	Index      int       // offset of the newer bar in the most-recent-first series
	FormedAt   time.Time // open time of the newer bar
}

// Size is the width of the band
func (g Gap) Size() float64 {
	return g.UpperBound - g.LowerBound
}

// Contains reports whether price sits inside the closed band
func (g Gap) Contains(price float64) bool {
	return price >= g.LowerBound && price <= g.UpperBound
}

// TradePlan is a hypothetical entry derived from a gap and the current mid
type TradePlan struct {
	Symbol      string
	Direction   Direction
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
}

// Risk is the distance between entry and stop
func (p TradePlan) Risk() float64 {
	if p.Direction == Bearish {
		return p.StopPrice - p.EntryPrice
	}
	return p.EntryPrice - p.StopPrice
}

// Outcome labels a simulated trade
type Outcome int

const (
	Loss Outcome = iota
	Win
)

// String returns the outcome name
func (o Outcome) String() string {
	if o == Win {
		return "win"
	}
	return "loss"
}

// Label converts the outcome into a binary training label
func (o Outcome) Label() float64 {
	if o == Win {
		return 1
	}
	return 0
}
