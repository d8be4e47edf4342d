package exchanges

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"gapsentry/internal/domain/market_data"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// BreakerSettings tunes the per-endpoint-group circuit breakers
type BreakerSettings struct {
	Interval            time.Duration // window after which closed-state counts reset
	Timeout             time.Duration // open state duration before a half-open probe
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64
}

// DefaultBreakerSettings trips after 3 consecutive failures, or above 5% failures once 20 requests were seen
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
	}
}

// Breaker guards an Exchange with one circuit for market data and one for execution,
// so a failing venue is skipped quickly instead of timing out every symbol.
type Breaker struct {
	next      Exchange
	marketCB  *gobreaker.CircuitBreaker
	executeCB *gobreaker.CircuitBreaker
}

// NewBreaker wraps ex with circuit breakers
func NewBreaker(ex Exchange, s BreakerSettings) *Breaker {
	log := logger.Get().With("component", "exchange_breaker", "exchange", ex.Name())

	build := func(group string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     ex.Name() + "-" + group,
			Interval: s.Interval,
			Timeout:  s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
					return true
				}
				if counts.Requests < s.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) > s.FailureRatio
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return &Breaker{
		next:      ex,
		marketCB:  build("market"),
		executeCB: build("execution"),
	}
}

// countsAsSuccess keeps caller mistakes and venue rejections from tripping the circuit
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, errors.ErrInvalidSymbol) || errors.Is(err, ErrInvalidRequest) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429 {
		return true
	}
	return false
}

func (b *Breaker) Name() string {
	return b.next.Name()
}

func (b *Breaker) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market_data.Bar, error) {
	res, err := b.marketCB.Execute(func() (interface{}, error) {
		return b.next.GetBars(ctx, symbol, interval, limit)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.([]market_data.Bar), nil
}

func (b *Breaker) GetQuote(ctx context.Context, symbol string) (*market_data.Quote, error) {
	res, err := b.marketCB.Execute(func() (interface{}, error) {
		return b.next.GetQuote(ctx, symbol)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.(*market_data.Quote), nil
}

func (b *Breaker) ResolveSymbol(ctx context.Context, symbol string) (*market_data.SymbolInfo, error) {
	res, err := b.marketCB.Execute(func() (interface{}, error) {
		return b.next.ResolveSymbol(ctx, symbol)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return res.(*market_data.SymbolInfo), nil
}

func (b *Breaker) PlaceBracketOrder(ctx context.Context, req BracketRequest) (*BracketResult, error) {
	var partial *BracketResult
	res, err := b.executeCB.Execute(func() (interface{}, error) {
		r, err := b.next.PlaceBracketOrder(ctx, req)
		partial = r
		return r, err
	})
	if err != nil {
		return partial, mapBreakerErr(err)
	}
	return res.(*BracketResult), nil
}

func (b *Breaker) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	res, err := b.executeCB.Execute(func() (interface{}, error) {
		return b.next.HasOpenPosition(ctx, symbol)
	})
	if err != nil {
		return false, mapBreakerErr(err)
	}
	return res.(bool), nil
}

// State reports the market and execution circuit states
func (b *Breaker) State() (market, execution gobreaker.State) {
	return b.marketCB.State(), b.executeCB.State()
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(errors.ErrExchangeUnavailable, err.Error())
	}
	return err
}
