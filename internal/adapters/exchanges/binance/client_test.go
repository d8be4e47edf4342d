package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/adapters/exchanges/retry"
	"gapsentry/pkg/errors"
)

func newTestClient(t *testing.T, market exchanges.MarketType, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:    "key",
		SecretKey: "secret",
		Market:    market,
		BaseURL:   srv.URL,
	})
	require.NoError(t, err)
	return c
}

func TestClient_GetBarsReturnsMostRecentFirst(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeSpot, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","101.0","99.0","100.5","10.0",1700000299999],
			[1700000300000,"100.5","102.0","100.0","101.5","12.5",1700000599999],
			[1700000600000,"101.5","103.0","101.0","102.5","7.25",1700000899999]
		]`))
	})

	bars, err := c.GetBars(context.Background(), "btc-usdt", "5m", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, 102.5, bars[0].Close)
	assert.Equal(t, 7.25, bars[0].Volume)
	assert.Equal(t, 100.5, bars[2].Close)
	assert.True(t, bars[0].OpenTime.After(bars[1].OpenTime))
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.Equal(t, "5m", bars[0].Timeframe)
}

func TestClient_GetQuote(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeLinearPerp, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/bookTicker", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"2000.10","askPrice":"2000.30","time":1700000000000}`))
	})

	q, err := c.GetQuote(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2000.10, q.Bid)
	assert.Equal(t, 2000.30, q.Ask)
	assert.InDelta(t, 2000.20, q.Mid(), 1e-9)
	assert.Equal(t, int64(1700000000000), q.Timestamp.UnixMilli())
}

func TestClient_ResolveSymbol(t *testing.T) {
	var calls int
	var mu sync.Mutex
	c := newTestClient(t, exchanges.MarketTypeSpot, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()

		if r.URL.Query().Get("symbol") == "NOPEUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT",
			"filters":[{"filterType":"PRICE_FILTER","tickSize":"0.01000000"},{"filterType":"LOT_SIZE","stepSize":"0.00001000"}]}]}`))
	})

	info, err := c.ResolveSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.01, info.TickSize)
	assert.Equal(t, 0.00001, info.StepSize)
	assert.True(t, info.Tradable)

	_, err = c.ResolveSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "exchange info is cached")

	_, err = c.ResolveSymbol(context.Background(), "NOPEUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidSymbol))
	assert.Equal(t, "-1121", exchanges.ErrorCode(err))
}

func TestClient_PlaceBracketOrderFutures(t *testing.T) {
	var mu sync.Mutex
	var orders []url.Values

	c := newTestClient(t, exchanges.MarketTypeLinearPerp, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING",
				"filters":[{"filterType":"PRICE_FILTER","tickSize":"0.10"},{"filterType":"LOT_SIZE","stepSize":"0.001"}]}]}`))
		case "/fapi/v1/order":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
			assert.NotEmpty(t, r.PostForm.Get("signature"))
			mu.Lock()
			orders = append(orders, r.PostForm)
			n := len(orders)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"orderId":` + strconv.Itoa(n) + `,"symbol":"BTCUSDT","status":"NEW","type":"` +
				r.PostForm.Get("type") + `","side":"` + r.PostForm.Get("side") + `","origQty":"` + r.PostForm.Get("quantity") + `"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	_, err := c.ResolveSymbol(ctx, "BTCUSDT")
	require.NoError(t, err)

	res, err := c.PlaceBracketOrder(ctx, exchanges.BracketRequest{
		Symbol:      "BTCUSDT",
		Side:        exchanges.OrderSideBuy,
		Quantity:    decimal.RequireFromString("0.0015"),
		StopPrice:   decimal.RequireFromString("99.87"),
		TargetPrice: decimal.RequireFromString("106.23"),
		Tag:         "gs1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	require.NotNil(t, res.StopLoss)
	require.NotNil(t, res.TakeProfit)

	require.Len(t, orders, 3)
	assert.Equal(t, "MARKET", orders[0].Get("type"))
	assert.Equal(t, "BUY", orders[0].Get("side"))
	assert.Equal(t, "0.001", orders[0].Get("quantity"))
	assert.Equal(t, "gs1-e", orders[0].Get("newClientOrderId"))

	assert.Equal(t, "STOP_MARKET", orders[1].Get("type"))
	assert.Equal(t, "SELL", orders[1].Get("side"))
	assert.Equal(t, "99.8", orders[1].Get("stopPrice"))
	assert.Equal(t, "true", orders[1].Get("reduceOnly"))

	assert.Equal(t, "TAKE_PROFIT_MARKET", orders[2].Get("type"))
	assert.Equal(t, "106.2", orders[2].Get("stopPrice"))
}

func TestClient_PlaceBracketOrderRejected(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeLinearPerp, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	_, err := c.PlaceBracketOrder(context.Background(), exchanges.BracketRequest{
		Symbol:      "BTCUSDT",
		Side:        exchanges.OrderSideSell,
		Quantity:    decimal.RequireFromString("0.01"),
		StopPrice:   decimal.RequireFromString("105"),
		TargetPrice: decimal.RequireFromString("95"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrOrderRejected)
	assert.Equal(t, "-2019", exchanges.ErrorCode(err))

	var apiErr *exchanges.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Margin is insufficient.", apiErr.Message)
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeLinearPerp, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	})

	_, err := c.HasOpenPosition(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.NotErrorIs(t, err, errors.ErrOrderRejected)
	assert.Equal(t, "http_502", exchanges.ErrorCode(err))
}

func TestClient_PlaceBracketOrderSpotUnsupported(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeSpot, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.PlaceBracketOrder(context.Background(), exchanges.BracketRequest{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, exchanges.ErrNotSupported)
}

func TestClient_HasOpenPosition(t *testing.T) {
	c := newTestClient(t, exchanges.MarketTypeLinearPerp, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"-0.010"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"ETHUSDT","positionAmt":"0.000"}]`))
	})

	open, err := c.HasOpenPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, open)

	open, err = c.HasOpenPosition(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestClient_RetriesTransientReads(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"1","askPrice":"2"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		BaseURL: srv.URL,
		Retry: retry.New(retry.Config{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			Strategy:     retry.StrategyFixed,
		}, nil),
	})
	require.NoError(t, err)

	q, err := c.GetQuote(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.Ask)
	assert.Equal(t, 3, attempts)
}

func TestNewClient_RequiresKeyPairs(t *testing.T) {
	_, err := NewClient(Config{SecretKey: "only-secret"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "only-key"})
	assert.Error(t, err)

	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.baseURL(), "https://api.binance.com"))
}
