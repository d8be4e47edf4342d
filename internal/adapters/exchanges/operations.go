package exchanges

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ExecuteBracketOrder places a market entry followed by reduce-only stop and
// take-profit legs (best effort). When a protective leg fails the entry is
// already live; the returned result carries the legs that were placed.
func ExecuteBracketOrder(ctx context.Context, placer OrderPlacer, req BracketRequest) (*BracketResult, error) {
	if err := validateBracket(req); err != nil {
		return nil, err
	}

	entryReq := OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          OrderTypeMarket,
		Quantity:      req.Quantity,
		ClientOrderID: legID(req.Tag, "e"),
	}
	entry, err := placer.PlaceOrder(ctx, &entryReq)
	if err != nil {
		return nil, err
	}

	res := &BracketResult{Entry: entry}
	exitSide := oppositeSide(req.Side)

	stopReq := OrderRequest{
		Symbol:        req.Symbol,
		Side:          exitSide,
		Type:          OrderTypeStopMarket,
		Quantity:      req.Quantity,
		StopPrice:     req.StopPrice,
		ReduceOnly:    true,
		ClientOrderID: legID(req.Tag, "sl"),
	}
	if res.StopLoss, err = placer.PlaceOrder(ctx, &stopReq); err != nil {
		return res, fmt.Errorf("stop leg: %w", err)
	}

	tpReq := OrderRequest{
		Symbol:        req.Symbol,
		Side:          exitSide,
		Type:          OrderTypeTakeProfitMarket,
		Quantity:      req.Quantity,
		StopPrice:     req.TargetPrice,
		ReduceOnly:    true,
		ClientOrderID: legID(req.Tag, "tp"),
	}
	if res.TakeProfit, err = placer.PlaceOrder(ctx, &tpReq); err != nil {
		return res, fmt.Errorf("take-profit leg: %w", err)
	}

	return res, nil
}

// RoundToStep floors value to a multiple of step. A non-positive step leaves value unchanged.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

func validateBracket(req BracketRequest) error {
	if req.Symbol == "" || req.Quantity.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidRequest
	}
	if req.StopPrice.LessThanOrEqual(decimal.Zero) || req.TargetPrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidRequest
	}
	switch req.Side {
	case OrderSideBuy:
		if !req.StopPrice.LessThan(req.TargetPrice) {
			return ErrInvalidRequest
		}
	case OrderSideSell:
		if !req.StopPrice.GreaterThan(req.TargetPrice) {
			return ErrInvalidRequest
		}
	default:
		return ErrInvalidRequest
	}
	return nil
}

func legID(tag, leg string) string {
	if tag == "" {
		return ""
	}
	return tag + "-" + leg
}

func oppositeSide(side OrderSide) OrderSide {
	if side == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}
