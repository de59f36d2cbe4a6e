package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "github.com/Strauch27/trading-bot-professional-sub000/pkg/errors"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// RequestSigner attaches venue-specific authentication to an outbound
// request (API key header, HMAC query signature, etc).
type RequestSigner interface {
	Sign(req *http.Request, body []byte) error
}

// HTTPClient is a generic REST exchange client: one mutex serializes every
// HTTP-bearing call, a failsafe retry policy covers transient failures,
// and a token-bucket limiter throttles outbound request rate. URL/param
// construction happens in liveAdapter's per-operation methods; this type
// owns only the cross-cutting resilience contract.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	signer  RequestSigner
	log     core.ILogger

	mu       sync.Mutex // serializes every HTTP-bearing call
	limiter  *rate.Limiter
	pipeline failsafe.Executor[*http.Response]

	serverTimeOffset time.Duration // applied to outbound timestamps after a resync
}

// NewHTTPClient builds a client with the default retry envelope and a
// fixed 10 req/s token bucket (burst 20); the limiter is not configurable.
func NewHTTPClient(baseURL string, signer RequestSigner, log core.ILogger) *HTTPClient {
	retry := DefaultRetryConfig()

	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && (resp.StatusCode == 429 || resp.StatusCode >= 500)
		}).
		WithBackoff(retry.BaseBackoff, retry.MaxBackoff).
		WithJitterFactor(float32(retry.JitterFrac)).
		WithMaxRetries(retry.MaxAttempts - 1).
		WithMaxDuration(retry.TotalBudget).
		Build()

	return &HTTPClient{
		http:     &http.Client{Timeout: CallTimeout},
		baseURL:  baseURL,
		signer:   signer,
		log:      log.WithField("component", "exchange_http_client"),
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		pipeline: failsafe.NewExecutor[*http.Response](retryPolicy),
	}
}

// do serializes the call under the HTTP mutex, enforces the per-call
// timeout, retries via the failsafe pipeline, and performs the one-shot
// clock-skew resync+retry.
func (c *HTTPClient) do(ctx context.Context, method, path string, query map[string]string, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %v", apperrors.ErrNetwork, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resp, bodyBytes, err := c.attempt(ctx, method, path, query, body)
	if err != nil && isClockSkew(err) {
		c.resyncServerTime(ctx)
		resp, bodyBytes, err = c.attempt(ctx, method, path, query, body)
	}
	_ = resp
	return bodyBytes, err
}

func (c *HTTPClient) attempt(ctx context.Context, method, path string, query map[string]string, body interface{}) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: marshal body: %v", apperrors.ErrInvalidRequest, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: build request: %v", apperrors.ErrInvalidRequest, err)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.signer != nil {
		if err := c.signer.Sign(req, raw); err != nil {
			return nil, nil, fmt.Errorf("%w: sign request: %v", apperrors.ErrAuthenticationFailed, err)
		}
	}

	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("%w: read response body: %v", apperrors.ErrNetwork, err)
	}

	if resp.StatusCode == 429 {
		return resp, respBody, apperrors.ErrRateLimitExceeded
	}
	if resp.StatusCode == 404 {
		return resp, respBody, apperrors.ErrOrderNotFound
	}
	if resp.StatusCode >= 500 {
		return resp, respBody, apperrors.ErrExchangeError
	}
	if resp.StatusCode >= 400 {
		return resp, respBody, apperrors.ErrInvalidRequest
	}
	return resp, respBody, nil
}

func classifyTransportError(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
}

func isClockSkew(err error) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte("recvWindow")) ||
		(err != nil && bytes.Contains([]byte(err.Error()), []byte("timestamp outside")))
}

func (c *HTTPClient) resyncServerTime(ctx context.Context) {
	// A real venue adapter issues a lightweight /time call here and sets
	// c.serverTimeOffset = serverTime.Sub(time.Now()); left as a no-op
	// offset for the generic client since no concrete venue is wired.
	c.log.Warn("clock skew detected, resyncing server time offset")
}

var _ Client = (*liveAdapter)(nil)

// liveAdapter satisfies the Client interface over an HTTPClient. Its
// per-operation bodies are intentionally thin: venue-specific
// path/param/response-shape mapping is out of scope here, so this
// adapter demonstrates the resilience contract against a generic REST
// shape rather than any one exchange's wire format.
type liveAdapter struct {
	h       *HTTPClient
	markets map[string]domain.MarketInfo
	mu      sync.RWMutex
}

// NewLiveClient wraps an HTTPClient as a Client implementation.
func NewLiveClient(h *HTTPClient) Client {
	return &liveAdapter{h: h, markets: make(map[string]domain.MarketInfo)}
}

func (a *liveAdapter) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	raw, err := a.h.do(ctx, http.MethodGet, "/ticker", map[string]string{"symbol": symbol}, nil)
	if err != nil {
		return domain.Ticker{}, err
	}
	var t domain.Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Ticker{}, fmt.Errorf("%w: decode ticker: %v", apperrors.ErrExchangeError, err)
	}
	return t, nil
}

func (a *liveAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, since *time.Time) ([]domain.OHLCVBar, error) {
	q := map[string]string{"symbol": symbol, "interval": timeframe, "limit": fmt.Sprint(limit)}
	if since != nil {
		q["startTime"] = fmt.Sprint(since.UnixMilli())
	}
	raw, err := a.h.do(ctx, http.MethodGet, "/klines", q, nil)
	if err != nil {
		return nil, err
	}
	var bars []domain.OHLCVBar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("%w: decode ohlcv: %v", apperrors.ErrExchangeError, err)
	}
	return bars, nil
}

func (a *liveAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	raw, err := a.h.do(ctx, http.MethodGet, "/depth", map[string]string{"symbol": symbol, "limit": fmt.Sprint(depth)}, nil)
	if err != nil {
		return domain.OrderBook{}, err
	}
	var book domain.OrderBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("%w: decode order book: %v", apperrors.ErrExchangeError, err)
	}
	return book, nil
}

func (a *liveAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	raw, err := a.h.do(ctx, http.MethodPost, "/order", nil, req)
	if err != nil {
		if isDuplicateOrder(err) {
			return a.FetchOrder(ctx, req.ClientOrderID, req.Symbol)
		}
		return domain.Order{}, err
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.Order{}, fmt.Errorf("%w: decode order: %v", apperrors.ErrExchangeError, err)
	}
	return o, nil
}

func isDuplicateOrder(err error) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte("duplicate"))
}

func (a *liveAdapter) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (domain.Order, error) {
	raw, err := a.h.do(ctx, http.MethodDelete, "/order", map[string]string{"orderId": exchangeOrderID, "symbol": symbol}, nil)
	if err != nil {
		if err == apperrors.ErrOrderNotFound {
			return domain.Order{ExchangeOrderID: exchangeOrderID, Symbol: symbol, Status: domain.OrderStatusCanceled}, nil
		}
		return domain.Order{}, err
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.Order{}, fmt.Errorf("%w: decode order: %v", apperrors.ErrExchangeError, err)
	}
	return o, nil
}

func (a *liveAdapter) FetchOrder(ctx context.Context, exchangeOrderID, symbol string) (domain.Order, error) {
	raw, err := a.h.do(ctx, http.MethodGet, "/order", map[string]string{"orderId": exchangeOrderID, "symbol": symbol}, nil)
	if err != nil {
		return domain.Order{}, err
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.Order{}, fmt.Errorf("%w: decode order: %v", apperrors.ErrExchangeError, err)
	}
	return o, nil
}

func (a *liveAdapter) FetchMyTrades(ctx context.Context, symbol string, since *time.Time, limit int) ([]domain.Trade, error) {
	q := map[string]string{"symbol": symbol, "limit": fmt.Sprint(limit)}
	if since != nil {
		q["startTime"] = fmt.Sprint(since.UnixMilli())
	}
	raw, err := a.h.do(ctx, http.MethodGet, "/myTrades", q, nil)
	if err != nil {
		return nil, err
	}
	var trades []domain.Trade
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, fmt.Errorf("%w: decode trades: %v", apperrors.ErrExchangeError, err)
	}
	return trades, nil
}

func (a *liveAdapter) FetchBalance(ctx context.Context) (domain.Balance, error) {
	raw, err := a.h.do(ctx, http.MethodGet, "/account", nil, nil)
	if err != nil {
		return domain.Balance{}, err
	}
	var bal domain.Balance
	if err := json.Unmarshal(raw, &bal); err != nil {
		return domain.Balance{}, fmt.Errorf("%w: decode balance: %v", apperrors.ErrExchangeError, err)
	}
	return bal, nil
}

func (a *liveAdapter) LoadMarkets(ctx context.Context, reload bool) (map[string]domain.MarketInfo, error) {
	a.mu.RLock()
	if !reload && len(a.markets) > 0 {
		defer a.mu.RUnlock()
		return a.markets, nil
	}
	a.mu.RUnlock()

	raw, err := a.h.do(ctx, http.MethodGet, "/exchangeInfo", nil, nil)
	if err != nil {
		return nil, err
	}
	var list []domain.MarketInfo
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: decode markets: %v", apperrors.ErrExchangeError, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.markets = make(map[string]domain.MarketInfo, len(list))
	for _, m := range list {
		a.markets[m.Symbol] = m
	}
	return a.markets, nil
}

func (a *liveAdapter) AmountToPrecision(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	a.mu.RLock()
	m, ok := a.markets[symbol]
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown symbol %s", apperrors.ErrInvalidSymbol, symbol)
	}
	return qty.DivRound(m.QuantityStep, 0).Mul(m.QuantityStep), nil
}

func (a *liveAdapter) PriceToPrecision(symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	a.mu.RLock()
	m, ok := a.markets[symbol]
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown symbol %s", apperrors.ErrInvalidSymbol, symbol)
	}
	return price.DivRound(m.PriceTick, 0).Mul(m.PriceTick), nil
}
