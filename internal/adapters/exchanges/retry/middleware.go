package retry

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"gapsentry/pkg/errors"
)

// Strategy defines the backoff shape
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // exponential only
}

// DefaultConfig returns three exponential retries starting at 100ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

// Middleware retries transient exchange failures with backoff
type Middleware struct {
	config  Config
	onRetry func(attempt int, err error)
}

// New creates a retry middleware. onRetry, if set, is called before each backoff sleep.
func New(config Config, onRetry func(attempt int, err error)) *Middleware {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Strategy == "" {
		config.Strategy = StrategyExponential
	}

	return &Middleware{config: config, onRetry: onRetry}
}

// Do executes fn until it succeeds, fails permanently or retries run out
func (m *Middleware) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == m.config.MaxRetries {
			break
		}

		if m.onRetry != nil {
			m.onRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(m.delay(attempt)):
		}
	}

	if m.config.MaxRetries == 0 {
		return lastErr
	}
	return errors.Wrapf(lastErr, "max retries (%d) exceeded", m.config.MaxRetries)
}

// DoValue is Do for functions returning a value
func DoValue[T any](ctx context.Context, m *Middleware, fn func() (T, error)) (T, error) {
	var out T
	err := m.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (m *Middleware) delay(attempt int) time.Duration {
	var d time.Duration

	switch m.config.Strategy {
	case StrategyLinear:
		d = m.config.InitialDelay * time.Duration(1+attempt)
	case StrategyFixed:
		d = m.config.InitialDelay
	default:
		d = time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))
	}

	if d > m.config.MaxDelay {
		d = m.config.MaxDelay
	}
	return d
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"temporary failure",
	"too many requests",
	"rate limit",
	"throttled",
}

// IsRetryable reports whether err looks transient
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
