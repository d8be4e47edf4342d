package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"gapsentry/pkg/errors"
)

// Endpoint groups throttled independently
const (
	GroupMarket = "market"
	GroupOrder  = "order"
)

// Limiter throttles calls to one endpoint group
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a limiter allowing requestsPerMinute with a burst of 10% of that
func NewLimiter(name string, requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// Wait blocks until the limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(errors.ErrRateLimitExceeded, "limiter %s: %v", l.name, err)
	}
	return nil
}

// Allow checks if a request is allowed without blocking
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// MultiLimiter keys limiters by endpoint group
type MultiLimiter struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates an empty multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*Limiter),
	}
}

// AddLimiter registers a limiter for key
func (m *MultiLimiter) AddLimiter(key string, limiter *Limiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[key] = limiter
}

// Wait waits on every listed limiter in order. Unknown keys are ignored.
func (m *MultiLimiter) Wait(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range keys {
		if limiter, ok := m.limiters[key]; ok {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// NewBinanceLimiters returns limiters sized for Binance REST limits
// (https://binance-docs.github.io/apidocs/spot/en/#limits).
// Every call waits on GroupMarket; order placement also waits on GroupOrder.
func NewBinanceLimiters(requestsPerMinute, ordersPerMinute int) *MultiLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1200
	}
	if ordersPerMinute <= 0 {
		ordersPerMinute = 600
	}

	m := NewMultiLimiter()
	m.AddLimiter(GroupMarket, NewLimiter("binance-"+GroupMarket, requestsPerMinute))
	m.AddLimiter(GroupOrder, NewLimiter("binance-"+GroupOrder, ordersPerMinute))
	return m
}
