// Package exchange defines the single-venue exchange capability contract
// and its implementations: a generic REST client with a
// resilience pipeline, and an in-memory mock for dry runs and tests. The
// per-venue request-signing/adapter layer is intentionally out of scope;
// callers configure a Client with a base URL, credentials, and a
// RequestSigner and get the same retry/timeout/mutex guarantees regardless
// of venue.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// Client is the capability contract every engine component depends on.
// Every operation may fail with one of the apperrors sentinels
// (ErrNetwork, ErrRateLimitExceeded, ErrExchangeError, ErrInvalidRequest,
// ErrOrderNotFound).
type Client interface {
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int, since *time.Time) ([]domain.OHLCVBar, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)

	CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (domain.Order, error)
	FetchOrder(ctx context.Context, exchangeOrderID, symbol string) (domain.Order, error)
	FetchMyTrades(ctx context.Context, symbol string, since *time.Time, limit int) ([]domain.Trade, error)

	FetchBalance(ctx context.Context) (domain.Balance, error)
	LoadMarkets(ctx context.Context, reload bool) (map[string]domain.MarketInfo, error)

	AmountToPrecision(symbol string, qty decimal.Decimal) (decimal.Decimal, error)
	PriceToPrecision(symbol string, price decimal.Decimal) (decimal.Decimal, error)
}

// CreateOrderRequest is the semantic signature of create_order.
type CreateOrderRequest struct {
	Symbol        string
	Type          domain.OrderType
	Side          domain.Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for MARKET
	TIF           domain.TimeInForce
	PostOnly      bool
	ClientOrderID string
}

// CallTimeout is the default per-call hard timeout.
const CallTimeout = 7 * time.Second

// RetryConfig is the default retry envelope: 4 attempts, base
// 0.25s, cap 1s, total wall-clock <= 5s, +-10% jitter, retried only on
// NetworkError | RateLimited | 5xx.
type RetryConfig struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	TotalBudget  time.Duration
	JitterFrac   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseBackoff: 250 * time.Millisecond,
		MaxBackoff:  time.Second,
		TotalBudget: 5 * time.Second,
		JitterFrac:  0.10,
	}
}
