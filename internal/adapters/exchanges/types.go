package exchanges

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType defines supported exchange market segments.
type MarketType string

const (
	MarketTypeSpot       MarketType = "spot"
	MarketTypeLinearPerp MarketType = "linear_perp"
)

// OrderSide defines buy or sell direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType defines supported order execution types.
type OrderType string

const (
	OrderTypeMarket           OrderType = "market"
	OrderTypeLimit            OrderType = "limit"
	OrderTypeStopMarket       OrderType = "stop_market"
	OrderTypeTakeProfitMarket OrderType = "take_profit_market"
)

// OrderStatus enumerates exchange level order lifecycle.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusPartial  OrderStatus = "partial"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusUnknown  OrderStatus = "unknown"
)

// OrderRequest is the payload for a single order leg.
type OrderRequest struct {
	Symbol        string
	Market        MarketType
	Side          OrderSide
	Type          OrderType
	Quantity      decimal.Decimal
	StopPrice     decimal.Decimal
	ReduceOnly    bool
	ClientOrderID string
}

// Order represents a normalized exchange order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Market        MarketType
	Type          OrderType
	Side          OrderSide
	Status        OrderStatus
	StopPrice     decimal.Decimal
	Quantity      decimal.Decimal
	Filled        decimal.Decimal
	ReduceOnly    bool
	CreatedAt     time.Time
}

// BracketRequest asks for a market entry protected by a stop and a target.
type BracketRequest struct {
	Symbol      string
	Side        OrderSide
	Quantity    decimal.Decimal
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal
	Tag         string // client order id prefix
}

// BracketResult summarizes placed legs.
type BracketResult struct {
	Entry      *Order
	StopLoss   *Order
	TakeProfit *Order
}
