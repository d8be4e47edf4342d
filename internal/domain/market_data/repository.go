package market_data

import (
	"context"
	"time"
)

// BarQuery selects a stored bar window
type BarQuery struct {
	Symbol    string
	Timeframe string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Repository defines access to stored bars (ClickHouse)
type Repository interface {
	InsertBars(ctx context.Context, bars []Bar) error
	// GetBars returns bars most-recent-first
	GetBars(ctx context.Context, query BarQuery) ([]Bar, error)
}
