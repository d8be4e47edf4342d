package exchanges

import (
	"context"

	"gapsentry/internal/domain/market_data"
)

// MarketData supplies bar series, quotes and instrument metadata.
// Bar series are returned most-recent-first.
type MarketData interface {
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]market_data.Bar, error)
	GetQuote(ctx context.Context, symbol string) (*market_data.Quote, error)
	// ResolveSymbol returns errors.ErrInvalidSymbol when the venue does not list symbol
	ResolveSymbol(ctx context.Context, symbol string) (*market_data.SymbolInfo, error)
}

// Execution places protective bracket orders and reports open exposure.
type Execution interface {
	PlaceBracketOrder(ctx context.Context, req BracketRequest) (*BracketResult, error)
	HasOpenPosition(ctx context.Context, symbol string) (bool, error)
}

// Exchange is the full contract a venue adapter satisfies.
type Exchange interface {
	Name() string
	MarketData
	Execution
}

// OrderPlacer places a single order leg.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
}
