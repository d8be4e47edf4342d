package market_data

import "time"

// Bar is one OHLCV candle. Series are handed around most-recent-first:
// index 0 is the bar currently forming (or last closed), higher indexes
// reach further into the past.
type Bar struct {
	Symbol    string    `ch:"symbol"`
	Timeframe string    `ch:"timeframe"` // 1m, 5m, 15m, 1h, 4h, 1d
	OpenTime  time.Time `ch:"open_time"`
	Open      float64   `ch:"open"`
	High      float64   `ch:"high"`
	Low       float64   `ch:"low"`
	Close     float64   `ch:"close"`
	Volume    float64   `ch:"volume"`
}

// Quote is the current top of book
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Mid returns the midpoint between bid and ask
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns ask minus bid in price units
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// SymbolInfo describes a resolvable instrument
type SymbolInfo struct {
	Symbol     string
	TickSize   float64 // minimum price increment
	StepSize   float64 // minimum quantity increment
	Tradable   bool
	BaseAsset  string
	QuoteAsset string
}

// SpreadTicks converts a quote's spread into price-increment units.
// Returns 0 when the tick size is unknown.
func (s SymbolInfo) SpreadTicks(q Quote) float64 {
	if s.TickSize <= 0 {
		return 0
	}
	return q.Spread() / s.TickSize
}

// Tier ranks the three evaluation timeframes: fine < medium < coarse
type Tier int

const (
	TierFine Tier = iota
	TierMedium
	TierCoarse
)

// String returns a human readable tier name
func (t Tier) String() string {
	switch t {
	case TierFine:
		return "fine"
	case TierMedium:
		return "medium"
	case TierCoarse:
		return "coarse"
	default:
		return "unknown"
	}
}

// Timeframe binds an exchange interval string to its tier
type Timeframe struct {
	Interval string
	Tier     Tier
}

// Chronological returns a copy of bars ordered oldest-first
func Chronological(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	for i, b := range bars {
		out[len(bars)-1-i] = b
	}
	return out
}

// Closes extracts close prices preserving order
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
