package exit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/order"
)

// LadderConfig configures the ordered escalation of SELL limit prices.
type LadderConfig struct {
	PremiumsBps      []decimal.Decimal // e.g. [50, 100, 200, 500]
	NeverMarketSells bool
}

// Ladder places SELL exits starting at bid-tick and escalating downward
// (in price, i.e. more aggressive) through PremiumsBps until a fill or
// exhaustion, at which point a market IOC is used unless NeverMarketSells.
type Ladder struct {
	cfg     LadderConfig
	client  exchange.Client
	placer  *order.Placer
	log     core.ILogger
}

func NewLadder(cfg LadderConfig, client exchange.Client, placer *order.Placer, log core.ILogger) *Ladder {
	return &Ladder{cfg: cfg, client: client, placer: placer, log: log.WithField("component", "exit_ladder")}
}

// PlaceStep places one rung of the ladder (step is 0-indexed into
// PremiumsBps); callers drive the loop across engine cycles so a rung has
// a chance to fill before the next is tried. Returns the placed FSM and
// whether the ladder is exhausted (caller should fall back to market).
func (l *Ladder) PlaceStep(ctx context.Context, symbol string, qty decimal.Decimal, step int) (*order.FSM, bool, error) {
	book, err := l.client.FetchOrderBook(ctx, symbol, 5)
	if err != nil {
		return nil, false, fmt.Errorf("fetch order book: %w", err)
	}
	bid := book.BestBid().Price
	if bid.IsZero() {
		return nil, false, fmt.Errorf("exit ladder: no bid for %s", symbol)
	}

	markets, err := l.client.LoadMarkets(ctx, false)
	if err != nil {
		return nil, false, fmt.Errorf("load markets: %w", err)
	}
	tick := markets[symbol].PriceTick

	exhausted := step >= len(l.cfg.PremiumsBps)
	if exhausted {
		if l.cfg.NeverMarketSells {
			return nil, true, fmt.Errorf("exit ladder exhausted for %s and never_market_sells is set", symbol)
		}
		fsm, err := l.placer.Place(ctx, order.PlaceRequest{
			Symbol:   symbol,
			Side:     domain.SideSell,
			Type:     domain.OrderTypeMarket,
			Quantity: qty,
			TIF:      domain.TIFIOC,
		})
		return fsm, true, err
	}

	premiumBps := l.cfg.PremiumsBps[step]
	offset := bid.Mul(premiumBps).Div(decimal.NewFromInt(10_000))
	limitPrice := bid.Sub(tick).Sub(offset)

	fsm, err := l.placer.Place(ctx, order.PlaceRequest{
		Symbol:   symbol,
		Side:     domain.SideSell,
		Type:     domain.OrderTypeLimit,
		Quantity: qty,
		Price:    limitPrice,
		TIF:      domain.TIFGTC,
	})
	return fsm, false, err
}

// RestoreMissing reattaches or re-places protection for a position whose
// tracked active exit order is no longer found open at the exchange
// (crash recovery): it first looks for an open order priced
// near TP or SL (+-2%) and reattaches that id, otherwise it places a fresh
// protection order at the SL price.
func (l *Ladder) RestoreMissing(ctx context.Context, pos *domain.Position) (string, error) {
	trades, err := l.client.FetchMyTrades(ctx, pos.Symbol, nil, 50)
	_ = trades // exchange-side trade history isn't needed for the open-orders scan below
	if err != nil {
		l.log.Warn("restore_missing: fetch trades failed", "symbol", pos.Symbol, "error", err.Error())
	}

	if pos.TakeProfitActive {
		if o, err := l.client.FetchOrder(ctx, pos.ActiveExitOrderID, pos.Symbol); err == nil && withinPct(o.Price, pos.TakeProfitPrice, 2) {
			return o.ExchangeOrderID, nil
		}
	}
	if pos.StopLossActive {
		if o, err := l.client.FetchOrder(ctx, pos.ActiveExitOrderID, pos.Symbol); err == nil && withinPct(o.Price, pos.StopLossPrice, 2) {
			return o.ExchangeOrderID, nil
		}
	}

	protectPrice := pos.StopLossPrice
	if protectPrice.IsZero() {
		protectPrice = pos.TakeProfitPrice
	}
	fsm, err := l.placer.Place(ctx, order.PlaceRequest{
		Symbol:   pos.Symbol,
		Side:     domain.SideSell,
		Type:     domain.OrderTypeLimit,
		Quantity: pos.Quantity,
		Price:    protectPrice,
		TIF:      domain.TIFGTC,
	})
	if err != nil {
		return "", err
	}
	return fsm.OrderID, nil
}

func withinPct(a, b decimal.Decimal, pct float64) bool {
	if b.IsZero() {
		return false
	}
	diff := a.Sub(b).Div(b).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(pct / 100))
}
