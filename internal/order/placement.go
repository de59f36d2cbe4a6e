package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	apperrors "github.com/Strauch27/trading-bot-professional-sub000/pkg/errors"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/retry"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/telemetry"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/tradingutils"
)

// Registry owns every live FSM, keyed by client_order_id, and is safe for
// concurrent multi-reader access (the order cache and FSM
// registry are internally synchronized ... and safe for multi-reader
// access").
type Registry struct {
	mu  sync.RWMutex
	fsm map[string]*FSM
}

func NewRegistry() *Registry {
	return &Registry{fsm: make(map[string]*FSM)}
}

func (r *Registry) put(f *FSM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fsm[f.ClientOrderID] = f
}

// Get returns the FSM for a client order id, if tracked.
func (r *Registry) Get(clientOrderID string) (*FSM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fsm[clientOrderID]
	return f, ok
}

// Snapshots returns a point-in-time copy of every tracked order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.fsm))
	for _, f := range r.fsm {
		out = append(out, f.Snapshot())
	}
	return out
}

// PlaceRequest is what a caller (the buy-evaluation path or the exit
// ladder) wants placed; rounding and client-order-id generation happen
// inside Place.
type PlaceRequest struct {
	Symbol        string
	Side          domain.Side
	Type          domain.OrderType
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TIF           domain.TimeInForce
	PostOnly      bool
	ClientOrderID string // optional; generated if empty
}

// Placer wraps an exchange.Client with the FSM-creating, precision-
// rounding, idempotent placement flow.
type Placer struct {
	client   exchange.Client
	registry *Registry
	log      core.ILogger
	policy   retry.RetryPolicy
}

func NewPlacer(client exchange.Client, registry *Registry, log core.ILogger) *Placer {
	return &Placer{
		client:   client,
		registry: registry,
		log:      log.WithField("component", "order_placer"),
		policy:   retry.DefaultPolicy,
	}
}

// Place rounds amount/price to the market's filters, generates a
// deterministic client order id if none was supplied, and submits under
// retry; a duplicate-order rejection is recovered by fetching the existing
// order instead of re-submitting.
func (p *Placer) Place(ctx context.Context, req PlaceRequest) (*FSM, error) {
	markets, err := p.client.LoadMarkets(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	info, ok := markets[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, req.Symbol)
	}

	roundedPrice := req.Price
	if req.Type == domain.OrderTypeLimit {
		roundedPrice = tradingutils.RoundToTick(req.Price, info.PriceTick)
	}

	var roundedQty decimal.Decimal
	if req.Side == domain.SideSell {
		roundedQty = tradingutils.FloorToStep(req.Quantity, info.QuantityStep)
	} else {
		roundedQty = tradingutils.CeilToStepWithMinNotional(req.Quantity, info.QuantityStep, roundedPrice, info.MinNotional)
	}
	if roundedQty.LessThanOrEqual(decimal.Zero) || (info.MinQuantity.IsPositive() && roundedQty.LessThan(info.MinQuantity)) {
		return nil, apperrors.ErrQtyRoundedToZero
	}

	coid := req.ClientOrderID
	if coid == "" {
		coid = GenerateClientOrderID(req.Symbol, req.Side, roundedQty, roundedPrice, req.Type)
	}

	if existing, ok := p.registry.Get(coid); ok {
		return existing, nil
	}

	fsm := NewFSM(req.Symbol, req.Side, roundedQty, roundedPrice, req.TIF, coid)

	var placed domain.Order
	err = retry.Do(ctx, p.policy, isTransient, func() error {
		o, placeErr := p.client.CreateOrder(ctx, exchange.CreateOrderRequest{
			Symbol:        req.Symbol,
			Type:          req.Type,
			Side:          req.Side,
			Quantity:      roundedQty,
			Price:         roundedPrice,
			TIF:           req.TIF,
			PostOnly:      req.PostOnly,
			ClientOrderID: coid,
		})
		if placeErr != nil {
			if errors.Is(placeErr, apperrors.ErrDuplicateOrder) {
				recovered, fetchErr := p.client.FetchOrder(ctx, coid, req.Symbol)
				if fetchErr != nil {
					return fetchErr
				}
				o = recovered
				placeErr = nil
			} else {
				return placeErr
			}
		}
		placed = o
		return nil
	})

	if err != nil {
		fsm.Fail(err.Error())
		p.registry.put(fsm)
		return fsm, fmt.Errorf("place order %s: %w", coid, err)
	}

	metrics := telemetry.GetGlobalMetrics()
	metrics.RecordOrderPlaced(ctx)

	fsm.OrderID = placed.ExchangeOrderID
	if err := fsm.Transition(domain.OrderStatusPending); err != nil {
		p.log.Warn("unexpected transition failure after placement", "client_order_id", coid, "error", err.Error())
	}
	if placed.FilledQuantity.IsPositive() {
		if err := fsm.RecordFill(placed.FilledQuantity, placed.AvgFillPrice, placed.FeeQuote); err != nil {
			p.log.Warn("fill recording failed after placement", "client_order_id", coid, "error", err.Error())
		}
	}
	if fsm.Status() == domain.OrderStatusFilled {
		metrics.RecordOrderFilled(ctx)
	}
	p.registry.put(fsm)
	return fsm, nil
}

func isTransient(err error) bool {
	return errors.Is(err, apperrors.ErrNetwork) || errors.Is(err, apperrors.ErrRateLimitExceeded) || errors.Is(err, apperrors.ErrExchangeError)
}
