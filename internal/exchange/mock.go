package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Strauch27/trading-bot-professional-sub000/pkg/errors"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// MockClient is an in-memory Client used for dry runs (exchange.name:
// "mock") and package tests. Orders against it fill immediately at the
// requested price (the ticker mid for a zero-price order) unless
// FillImmediately is disabled.
type MockClient struct {
	mu      sync.Mutex
	tickers map[string]domain.Ticker
	markets map[string]domain.MarketInfo
	orders  map[string]domain.Order // keyed by exchange order id
	byCOID  map[string]string       // client_order_id -> exchange order id
	balance domain.Balance

	// FillImmediately, if true (default), marks every CreateOrder result
	// FILLED at the requested price, or at the ticker mid when the request
	// has no price. Tests that want to drive partial
	// fills/timeouts should set it false and call SimulateFill directly.
	FillImmediately bool
}

func NewMockClient() *MockClient {
	return &MockClient{
		tickers:         make(map[string]domain.Ticker),
		markets:         make(map[string]domain.MarketInfo),
		orders:          make(map[string]domain.Order),
		byCOID:          make(map[string]string),
		balance:         domain.Balance{Free: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(100000)}, Locked: map[string]decimal.Decimal{}},
		FillImmediately: true,
	}
}

// SetTicker seeds/updates the ticker a test scenario observes.
func (m *MockClient) SetTicker(t domain.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[t.Symbol] = t
}

// SetMarket seeds market filter info for a symbol.
func (m *MockClient) SetMarket(info domain.MarketInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[info.Symbol] = info
}

func (m *MockClient) FetchTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickers[symbol]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	return t, nil
}

func (m *MockClient) FetchOHLCV(_ context.Context, _, _ string, _ int, _ *time.Time) ([]domain.OHLCVBar, error) {
	return nil, nil
}

func (m *MockClient) FetchOrderBook(_ context.Context, symbol string, _ int) (domain.OrderBook, error) {
	m.mu.Lock()
	t, ok := m.tickers[symbol]
	m.mu.Unlock()
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	return domain.OrderBook{
		Symbol: symbol,
		Bids:   []domain.PriceLevel{{Price: t.Bid, Quantity: decimal.NewFromInt(10)}},
		Asks:   []domain.PriceLevel{{Price: t.Ask, Quantity: decimal.NewFromInt(10)}},
	}, nil
}

func (m *MockClient) CreateOrder(_ context.Context, req CreateOrderRequest) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coid := req.ClientOrderID
	if coid == "" {
		coid = uuid.NewString()
	}
	if existingID, dup := m.byCOID[coid]; dup {
		return m.orders[existingID], nil
	}

	id := uuid.NewString()
	status := domain.OrderStatusNew
	filled := decimal.Zero
	avg := decimal.Zero
	if m.FillImmediately {
		status = domain.OrderStatusFilled
		filled = req.Quantity
		avg = req.Price
		if avg.IsZero() {
			if t, ok := m.tickers[req.Symbol]; ok {
				avg = t.Mid()
			}
		}
	}

	order := domain.Order{
		ExchangeOrderID: id,
		ClientOrderID:   coid,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		TimeInForce:     req.TIF,
		PostOnly:        req.PostOnly,
		Price:           req.Price,
		Quantity:        req.Quantity,
		FilledQuantity:  filled,
		AvgFillPrice:    avg,
		Status:          status,
		TimestampMs:     time.Now().UnixMilli(),
	}
	m.orders[id] = order
	m.byCOID[coid] = id
	return order, nil
}

// SimulateFill marks a previously-NEW order filled at the given price (used
// by tests driving the non-immediate-fill path).
func (m *MockClient) SimulateFill(exchangeOrderID string, fillQty, fillPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		return
	}
	o.FilledQuantity = o.FilledQuantity.Add(fillQty)
	o.AvgFillPrice = fillPrice
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartial
	}
	m.orders[exchangeOrderID] = o
}

func (m *MockClient) CancelOrder(_ context.Context, exchangeOrderID, symbol string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		return domain.Order{ExchangeOrderID: exchangeOrderID, Symbol: symbol, Status: domain.OrderStatusCanceled}, nil
	}
	if o.Status == domain.OrderStatusFilled || o.Status == domain.OrderStatusCanceled {
		return o, nil
	}
	o.Status = domain.OrderStatusCanceled
	m.orders[exchangeOrderID] = o
	return o, nil
}

func (m *MockClient) FetchOrder(_ context.Context, exchangeOrderID, _ string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		return domain.Order{}, apperrors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockClient) FetchMyTrades(_ context.Context, symbol string, _ *time.Time, _ int) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trades []domain.Trade
	for _, o := range m.orders {
		if o.Symbol != symbol || o.FilledQuantity.IsZero() {
			continue
		}
		trades = append(trades, domain.Trade{
			TradeID:     o.ExchangeOrderID,
			OrderID:     o.ExchangeOrderID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			Price:       o.AvgFillPrice,
			Quantity:    o.FilledQuantity,
			TimestampMs: o.TimestampMs,
		})
	}
	return trades, nil
}

func (m *MockClient) FetchBalance(_ context.Context) (domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *MockClient) LoadMarkets(_ context.Context, _ bool) (map[string]domain.MarketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.MarketInfo, len(m.markets))
	for k, v := range m.markets {
		out[k] = v
	}
	return out, nil
}

func (m *MockClient) AmountToPrecision(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	info, ok := m.markets[symbol]
	m.mu.Unlock()
	if !ok || info.QuantityStep.IsZero() {
		return qty, nil
	}
	return qty.DivRound(info.QuantityStep, 0).Mul(info.QuantityStep), nil
}

func (m *MockClient) PriceToPrecision(symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	info, ok := m.markets[symbol]
	m.mu.Unlock()
	if !ok || info.PriceTick.IsZero() {
		return price, nil
	}
	return price.DivRound(info.PriceTick, 0).Mul(info.PriceTick), nil
}

var _ Client = (*MockClient)(nil)
