// Package domain holds the plain data types shared across the trading
// bot: market data, anchors, positions, order FSM records, and PnL
// ledger entries. Every arithmetic field that touches an order uses
// decimal.Decimal; float64 appears only where a value is purely for
// logging or telemetry.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a order/position direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// TimeInForce is the exchange time-in-force policy.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// MarketInfo is the immutable-between-refreshes set of exchange filters
// for a symbol.
type MarketInfo struct {
	Symbol       string
	PriceTick    decimal.Decimal
	QuantityStep decimal.Decimal
	MinQuantity  decimal.Decimal
	MinNotional  decimal.Decimal
}

// Ticker is a point-in-time quote for a symbol.
type Ticker struct {
	Symbol         string
	Last           decimal.Decimal
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	Volume         decimal.Decimal
	TimestampMs    int64
	High24h        decimal.Decimal
	Low24h         decimal.Decimal
	ChangePct24h   decimal.Decimal
	Degraded       bool // synthesized from stale cache / last OHLCV close
}

// Valid reports whether the ticker has a usable bid/ask.
func (t Ticker) Valid() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive() && t.Ask.GreaterThanOrEqual(t.Bid)
}

// SpreadBps returns (ask-bid)/bid * 10_000.
func (t Ticker) SpreadBps() decimal.Decimal {
	if t.Bid.IsZero() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid).Div(t.Bid).Mul(decimal.NewFromInt(10_000))
}

// Mid returns (bid+ask)/2.
func (t Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// OHLCVBar is one candle.
type OHLCVBar struct {
	TimestampMs int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// PriceWindow is the anchor/peak/drop view published in a MarketSnapshot.
type PriceWindow struct {
	Anchor  decimal.Decimal
	Peak    decimal.Decimal
	DropPct decimal.Decimal
}

// MarketSnapshot is published to the event bus topic "drop.snapshots".
type MarketSnapshot struct {
	Version   int
	Symbol    string
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Windows   PriceWindow
	SpreadPct decimal.Decimal
	Timestamp time.Time
}

// AnchorRecord is the per-symbol anchor state (mode 4 persists to disk).
type AnchorRecord struct {
	Symbol        string    `json:"symbol"`
	AnchorPrice   decimal.Decimal `json:"anchor_price"`
	AnchorTimeS   int64     `json:"anchor_timestamp_s"`
}

// Position is an open long position in one symbol.
type Position struct {
	Symbol              string
	Quantity            decimal.Decimal
	EntryPrice          decimal.Decimal
	EntryTimeS          int64
	EntryFeePerUnit     decimal.Decimal
	ActiveExitOrderID   string
	PeakPriceSinceEntry decimal.Decimal
	EnableTrailing      bool
	SignalReason        string

	// Exit rule parameters evaluated by internal/exit.
	StopLossPrice   decimal.Decimal
	StopLossActive  bool
	TakeProfitPrice decimal.Decimal
	TakeProfitActive bool
	TrailingTrigger decimal.Decimal
	MaxHoldMinutes  int
}

// CooldownEntry marks a symbol as ineligible for new buys until a
// release timestamp.
type CooldownEntry struct {
	Symbol            string
	ReleaseTimestampS int64
}

// Fill is one ledger entry consumed by the PnL service.
type Fill struct {
	Symbol           string
	Side             Side
	Qty              decimal.Decimal
	AvgPrice         decimal.Decimal
	FeeQuote         decimal.Decimal
	TimestampS       int64
	LinkedEntryPrice decimal.Decimal
}

// OrderStatus is the FSM state of a placed order (internal/order owns the
// transition table; this is the wire/read-model representation).
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPartial  OrderStatus = "PARTIAL"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
	OrderStatusFailed   OrderStatus = "FAILED"
)

// Order is the exchange's view of a placed order as returned by
// create_order/fetch_order/cancel_order.
type Order struct {
	ExchangeOrderID string
	ClientOrderID   string
	Symbol          string
	Side            Side
	Type            OrderType
	TimeInForce     TimeInForce
	PostOnly        bool
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	FilledQuantity  decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Status          OrderStatus
	FeeQuote        decimal.Decimal
	TimestampMs     int64
}

// Trade is one fill reported by fetch_my_trades.
type Trade struct {
	TradeID       string
	OrderID       string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	FeeQuote      decimal.Decimal
	TimestampMs   int64
}

// Balance is a snapshot of account free/locked funds, keyed by asset.
type Balance struct {
	Free   map[string]decimal.Decimal
	Locked map[string]decimal.Decimal
}

// OrderBook is the depth snapshot fetch_order_book returns.
type OrderBook struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// PriceLevel is one (price, quantity) rung of an order book.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BestBid returns the top bid, or the zero level if the book is empty.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask, or the zero level if the book is empty.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// Intent is a pre-order tracking record used for latency telemetry.
type Intent struct {
	IntentID    string
	Symbol      string
	Signal      string
	StartTS     time.Time
	QuoteBudget decimal.Decimal
}
