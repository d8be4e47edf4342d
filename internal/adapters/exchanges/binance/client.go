package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gapsentry/internal/adapters/exchanges"
	"gapsentry/internal/adapters/exchanges/ratelimit"
	"gapsentry/internal/adapters/exchanges/retry"
	"gapsentry/internal/domain/market_data"
	"gapsentry/internal/metrics"
	"gapsentry/pkg/errors"
)

const (
	spotBaseURL         = "https://api.binance.com"
	spotTestnetBaseURL  = "https://testnet.binance.vision"
	futuresBaseURL      = "https://fapi.binance.com"
	futuresTestnetURL   = "https://testnet.binancefuture.com"
	defaultRecvWindowMs = 5000
	defaultHTTPTimeout  = 10 * time.Second

	codeInvalidSymbol = -1121
	codeTooManyReqs   = -1003
)

// Config configures the Binance client.
type Config struct {
	APIKey    string
	SecretKey string
	Market    exchanges.MarketType
	Testnet   bool
	BaseURL   string // overrides the market/testnet endpoint

	HTTPClient *http.Client
	RecvWindow time.Duration
	Limiters   *ratelimit.MultiLimiter
	Retry      *retry.Middleware
}

// Client is a REST adapter for Binance spot and USD-M futures.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.RWMutex
	symbols map[string]market_data.SymbolInfo
}

var _ exchanges.Exchange = (*Client)(nil)

// NewClient creates a new Binance adapter.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.SecretKey != "" {
		return nil, fmt.Errorf("api key required when secret key provided")
	}
	if cfg.SecretKey == "" && cfg.APIKey != "" {
		return nil, fmt.Errorf("secret key required when api key provided")
	}
	if cfg.Market == "" {
		cfg.Market = exchanges.MarketTypeSpot
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = defaultRecvWindowMs * time.Millisecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		symbols:    make(map[string]market_data.SymbolInfo),
	}, nil
}

func (c *Client) Name() string {
	return "binance"
}

// GetBars returns up to limit candles, most recent first
func (c *Client) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market_data.Bar, error) {
	if limit <= 0 {
		limit = 100
	}

	endpoint := c.apiPath("/api/v3/klines", "/fapi/v1/klines")
	params := url.Values{
		"symbol":   []string{normalizeSymbol(symbol)},
		"interval": []string{interval},
		"limit":    []string{strconv.Itoa(limit)},
	}

	data, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode klines")
	}

	// Binance returns oldest first
	bars := make([]market_data.Bar, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "kline row has %d fields", len(row))
		}
		bars[len(raw)-1-i] = market_data.Bar{
			Symbol:    normalizeSymbol(symbol),
			Timeframe: interval,
			OpenTime:  time.UnixMilli(toInt64(row[0])).UTC(),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		}
	}

	return bars, nil
}

// GetQuote returns the best bid and ask
func (c *Client) GetQuote(ctx context.Context, symbol string) (*market_data.Quote, error) {
	endpoint := c.apiPath("/api/v3/ticker/bookTicker", "/fapi/v1/ticker/bookTicker")
	params := url.Values{"symbol": []string{normalizeSymbol(symbol)}}

	data, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var res struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
		Time     int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode book ticker")
	}

	ts := time.Now().UTC()
	if res.Time > 0 {
		ts = time.UnixMilli(res.Time).UTC()
	}

	return &market_data.Quote{
		Symbol:    res.Symbol,
		Bid:       parseDecimal(res.BidPrice).InexactFloat64(),
		Ask:       parseDecimal(res.AskPrice).InexactFloat64(),
		Timestamp: ts,
	}, nil
}

// ResolveSymbol looks the symbol up in exchangeInfo. Results are cached for the
// client's lifetime.
func (c *Client) ResolveSymbol(ctx context.Context, symbol string) (*market_data.SymbolInfo, error) {
	sym := normalizeSymbol(symbol)

	c.mu.RLock()
	info, ok := c.symbols[sym]
	c.mu.RUnlock()
	if ok {
		return &info, nil
	}

	endpoint := c.apiPath("/api/v3/exchangeInfo", "/fapi/v1/exchangeInfo")
	params := url.Values{}
	if !c.isFutures() {
		params.Set("symbol", sym)
	}

	data, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var res struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode exchange info")
	}

	for _, s := range res.Symbols {
		if s.Symbol != sym {
			continue
		}
		info := market_data.SymbolInfo{
			Symbol:     s.Symbol,
			Tradable:   s.Status == "TRADING",
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				info.TickSize = parseDecimal(f.TickSize).InexactFloat64()
			case "LOT_SIZE":
				info.StepSize = parseDecimal(f.StepSize).InexactFloat64()
			}
		}

		c.mu.Lock()
		c.symbols[sym] = info
		c.mu.Unlock()
		return &info, nil
	}

	return nil, errors.Wrapf(errors.ErrInvalidSymbol, "binance: %s", sym)
}

// PlaceBracketOrder opens a market position with reduce-only stop and target legs.
// Only USD-M futures support the conditional market legs.
func (c *Client) PlaceBracketOrder(ctx context.Context, req exchanges.BracketRequest) (*exchanges.BracketResult, error) {
	if !c.isFutures() {
		return nil, exchanges.ErrNotSupported
	}

	req.Symbol = normalizeSymbol(req.Symbol)
	if req.Tag == "" {
		req.Tag = "gs" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}

	c.mu.RLock()
	info, ok := c.symbols[req.Symbol]
	c.mu.RUnlock()
	if ok {
		req.Quantity = exchanges.RoundToStep(req.Quantity, decimal.NewFromFloat(info.StepSize))
		req.StopPrice = exchanges.RoundToStep(req.StopPrice, decimal.NewFromFloat(info.TickSize))
		req.TargetPrice = exchanges.RoundToStep(req.TargetPrice, decimal.NewFromFloat(info.TickSize))
	}

	return exchanges.ExecuteBracketOrder(ctx, c, req)
}

// PlaceOrder places a single order leg
func (c *Client) PlaceOrder(ctx context.Context, req *exchanges.OrderRequest) (*exchanges.Order, error) {
	if req == nil {
		return nil, exchanges.ErrInvalidRequest
	}

	params := url.Values{
		"symbol": []string{normalizeSymbol(req.Symbol)},
		"side":   []string{strings.ToUpper(string(req.Side))},
		"type":   []string{mapOrderType(req.Type)},
	}

	if !req.Quantity.IsZero() {
		params.Set("quantity", req.Quantity.String())
	}
	if !req.StopPrice.IsZero() {
		params.Set("stopPrice", req.StopPrice.String())
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	endpoint := c.apiPath("/api/v3/order", "/fapi/v1/order")
	data, err := c.signed(ctx, http.MethodPost, endpoint, params, ratelimit.GroupOrder)
	if err != nil {
		return nil, err
	}

	var res struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		UpdateTime    int64  `json:"updateTime"`
		TransactTime  int64  `json:"transactTime"`
		StopPrice     string `json:"stopPrice"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
		ReduceOnly    bool   `json:"reduceOnly"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}

	created := res.UpdateTime
	if created == 0 {
		created = res.TransactTime
	}

	return &exchanges.Order{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Market:        c.cfg.Market,
		Type:          orderTypeFromString(res.Type),
		Side:          orderSideFromString(res.Side),
		Status:        orderStatusFromString(res.Status),
		StopPrice:     parseDecimal(res.StopPrice),
		Quantity:      parseDecimal(res.OrigQty),
		Filled:        parseDecimal(res.ExecutedQty),
		ReduceOnly:    res.ReduceOnly || req.ReduceOnly,
		CreatedAt:     time.UnixMilli(created).UTC(),
	}, nil
}

// HasOpenPosition reports a non-zero futures position on symbol. Spot accounts
// never hold positions.
func (c *Client) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	if !c.isFutures() {
		return false, nil
	}

	params := url.Values{"symbol": []string{normalizeSymbol(symbol)}}
	data, err := c.signed(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return false, err
	}

	var res []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return false, errors.Wrap(err, "decode position risk")
	}

	for _, p := range res {
		if p.Symbol == normalizeSymbol(symbol) && !parseDecimal(p.PositionAmt).IsZero() {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodGet, path, params, false)
}

func (c *Client) signed(ctx context.Context, method, path string, params url.Values, groups ...string) ([]byte, error) {
	return c.call(ctx, method, path, params, true, groups...)
}

// call throttles, retries and instruments one REST request
func (c *Client) call(ctx context.Context, method, path string, params url.Values, signed bool, groups ...string) ([]byte, error) {
	if c.cfg.Limiters != nil {
		keys := append([]string{ratelimit.GroupMarket}, groups...)
		if err := c.cfg.Limiters.Wait(ctx, keys...); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var (
		payload []byte
		err     error
	)

	// Order placement is never retried: a timed-out POST may have been accepted.
	if c.cfg.Retry != nil && method == http.MethodGet {
		payload, err = retry.DoValue(ctx, c.cfg.Retry, func() ([]byte, error) {
			return c.doRequest(ctx, method, path, cloneValues(params), signed)
		})
	} else {
		payload, err = c.doRequest(ctx, method, path, params, signed)
	}

	metrics.RecordExchangeAPICall(c.Name(), path, time.Since(start), err, exchanges.ErrorCode(err))
	return payload, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	var body io.Reader
	query := params.Encode()

	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		params.Set("signature", c.sign(params.Encode()))
		query = params.Encode()
	}

	reqURL := c.baseURL() + path

	switch method {
	case http.MethodGet, http.MethodDelete:
		if query != "" {
			reqURL = reqURL + "?" + query
		}
	default:
		body = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}

	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(method, path, resp.StatusCode, payload)
	}

	return payload, nil
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/")
	}

	if c.isFutures() {
		if c.cfg.Testnet {
			return futuresTestnetURL
		}
		return futuresBaseURL
	}

	if c.cfg.Testnet {
		return spotTestnetBaseURL
	}
	return spotBaseURL
}

func (c *Client) apiPath(spotPath, futuresPath string) string {
	if c.isFutures() {
		return futuresPath
	}
	return spotPath
}

func (c *Client) isFutures() bool {
	return c.cfg.Market != exchanges.MarketTypeSpot
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	_, _ = mac.Write([]byte(payload))
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// parseAPIError maps a venue error onto the shared taxonomy while keeping the
// APIError reachable through errors.As.
func parseAPIError(method, path string, status int, payload []byte) error {
	apiErr := &exchanges.APIError{Exchange: "binance", Status: status, Message: string(payload)}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Code != 0 {
		apiErr.Code = body.Code
		apiErr.Message = body.Msg
	}

	switch {
	case apiErr.Code == codeInvalidSymbol:
		return fmt.Errorf("%w: %w", errors.ErrInvalidSymbol, apiErr)
	case apiErr.Code == codeTooManyReqs || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", exchanges.ErrRateLimited, apiErr)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, apiErr)
	case method == http.MethodPost && strings.HasSuffix(path, "/order"):
		return fmt.Errorf("%w: %w", errors.ErrOrderRejected, apiErr)
	}
	return apiErr
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(v interface{}) float64 {
	return parseDecimal(fmt.Sprint(v)).InexactFloat64()
}

func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case json.Number:
		i, _ := val.Int64()
		return i
	default:
		num, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return num
	}
}

func mapOrderType(t exchanges.OrderType) string {
	switch t {
	case exchanges.OrderTypeMarket:
		return "MARKET"
	case exchanges.OrderTypeStopMarket:
		return "STOP_MARKET"
	case exchanges.OrderTypeTakeProfitMarket:
		return "TAKE_PROFIT_MARKET"
	default:
		return "LIMIT"
	}
}

func orderTypeFromString(s string) exchanges.OrderType {
	switch strings.ToUpper(s) {
	case "MARKET":
		return exchanges.OrderTypeMarket
	case "STOP_MARKET":
		return exchanges.OrderTypeStopMarket
	case "TAKE_PROFIT_MARKET":
		return exchanges.OrderTypeTakeProfitMarket
	default:
		return exchanges.OrderTypeLimit
	}
}

func orderSideFromString(s string) exchanges.OrderSide {
	if strings.ToUpper(s) == "SELL" {
		return exchanges.OrderSideSell
	}
	return exchanges.OrderSideBuy
}

func orderStatusFromString(s string) exchanges.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return exchanges.OrderStatusNew
	case "PARTIALLY_FILLED":
		return exchanges.OrderStatusPartial
	case "FILLED":
		return exchanges.OrderStatusFilled
	case "CANCELED":
		return exchanges.OrderStatusCanceled
	case "REJECTED":
		return exchanges.OrderStatusRejected
	case "EXPIRED":
		return exchanges.OrderStatusExpired
	default:
		return exchanges.OrderStatusUnknown
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}
