package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/guard"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/order"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/trigger"
)

// evaluateBuys runs the buy-evaluation path for every configured symbol
// once per cycle. Composite guard evaluation for the whole watchlist runs
// concurrently up front (read-only over cached market stats); the
// remaining per-symbol steps - sizing, trigger, placement - stay
// sequential since they mutate engine-owned state.
func (e *Engine) evaluateBuys(ctx context.Context, now time.Time) {
	if len(e.positions) >= e.cfg.Trading.MaxPositions {
		return
	}

	prices := make(map[string]decimal.Decimal, len(e.cfg.Trading.Symbols))
	for _, symbol := range e.cfg.Trading.Symbols {
		if t, ok := e.market.Cached(symbol); ok {
			prices[symbol] = t.Last
		}
	}
	guardResults := e.guards.EvaluateAll(e.cfg.Trading.Symbols, prices)

	for _, symbol := range e.cfg.Trading.Symbols {
		e.evaluateBuyForSymbol(ctx, symbol, now, guardResults[symbol])
	}
}

func (e *Engine) evaluateBuyForSymbol(ctx context.Context, symbol string, now time.Time, guardResult guard.Result) {
	decisionID := newDecisionID()
	e.events.DecisionStart(decisionID, symbol)

	if _, hasPosition := e.positions[symbol]; hasPosition {
		e.events.DecisionEnd(decisionID, symbol, "skip", "already_has_position", nil)
		return
	}
	if e.cooldowns.InCooldown(symbol, now) {
		e.events.DecisionEnd(decisionID, symbol, "skip", "in_cooldown", nil)
		return
	}
	if _, hasOpenOrder := e.openBuyOrders[symbol]; hasOpenOrder {
		e.events.DecisionEnd(decisionID, symbol, "skip", "open_buy_order_exists", nil)
		return
	}

	price, err := e.market.GetPrice(ctx, symbol, true)
	if err != nil {
		e.events.DecisionEnd(decisionID, symbol, "skip", "no_price", nil)
		return
	}

	// Step 1-2: feed price into the signal pipeline and guard feeders.
	e.anchors.NotePrice(symbol, price)
	window := e.rollingWindow(symbol)
	window.Push(now, price)

	// Step 3: composite guards, evaluated concurrently for the whole
	// watchlist by evaluateBuys; re-check against the live price if the
	// precomputed pass used a stale/missing cache entry.
	if guardResult.Symbol == "" {
		pass, failed := e.guards.Evaluate(symbol, price)
		guardResult = guard.Result{Symbol: symbol, Pass: pass, Failed: failed}
	}
	if !guardResult.Pass {
		e.events.DecisionEnd(decisionID, symbol, "blocked", "guard_failed", guardResult.Failed)
		e.events.GuardBlockSummary(symbol, guardResult.Failed)
		return
	}

	// Step 4: sizing preconditions.
	quoteBudget := decimal.NewFromFloat(e.cfg.Trading.PositionSizeUSDT)
	minSlot := decimal.NewFromFloat(e.cfg.Trading.MinSlotUSDT)
	if quoteBudget.LessThan(minSlot) {
		e.events.DecisionEnd(decisionID, symbol, "skip", "below_min_slot", nil)
		return
	}

	markets, err := e.client.LoadMarkets(ctx, false)
	if err != nil {
		e.events.DecisionEnd(decisionID, symbol, "skip", "market_info_unavailable", nil)
		return
	}
	info := markets[symbol]

	// Step 5: spread check.
	spreadBps, ok := e.market.SpreadBps(symbol)
	if ok && e.cfg.Guards.UseSpreadGuard && spreadBps.GreaterThan(decimal.NewFromFloat(e.cfg.Guards.MaxSpreadBpsEntry)) {
		e.events.DecisionEnd(decisionID, symbol, "blocked", "spread_too_wide", nil)
		return
	}

	// Step 6: slippage cap on the effective limit price.
	ticker, _ := e.market.Cached(symbol)
	mid := ticker.Mid()
	if mid.IsZero() {
		mid = price
	}
	maxSlippage := decimal.NewFromFloat(e.cfg.Exit.MaxSlippageBpsEntry).Div(decimal.NewFromInt(10_000))
	capPrice := mid.Mul(decimal.NewFromInt(1).Add(maxSlippage))
	effectivePrice := decimal.Min(price, capPrice)

	qty := quoteBudget.Div(effectivePrice)
	if qty.Mul(effectivePrice).LessThan(info.MinNotional) {
		e.events.DecisionEnd(decisionID, symbol, "skip", "below_min_notional", nil)
		return
	}

	// Step 7: drop trigger.
	rollingPeak := window.Max()
	anchorPrice := e.anchors.ComputeAnchor(symbol, rollingPeak, now)
	result := e.dropTrig.Evaluate(symbol, price, anchorPrice, now)
	if !result.Triggered {
		e.events.DecisionEnd(decisionID, symbol, "skip", string(result.Reason), nil)
		return
	}

	// Step 8: stabilizer confirmation.
	if !e.stabilizer.Step(symbol, true) {
		e.events.DecisionEnd(decisionID, symbol, "skip", "awaiting_confirmation", nil)
		return
	}
	e.stabilizer.Reset(symbol)

	// Step 9: place via the FSM wrapper. Mode 2 uses LIMIT IOC; all other
	// modes use LIMIT GTC with post_only.
	req := order.PlaceRequest{
		Symbol:   symbol,
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: qty,
		Price:    effectivePrice,
	}
	if e.cfg.Trigger.DropTriggerMode == int(2) {
		req.TIF = domain.TIFIOC
	} else {
		req.TIF = domain.TIFGTC
		req.PostOnly = true
	}

	e.events.OrderSent(symbol, string(domain.SideBuy), "", req.Price.String(), req.Quantity.String(), req.Quantity.Mul(req.Price).String(), string(req.TIF), req.PostOnly)
	fsm, err := e.placer.Place(ctx, req)
	if err != nil {
		e.log.Warn("buy placement failed", "symbol", symbol, "error", err.Error())
		e.cooldowns.Set(symbol, now, time.Duration(e.cfg.Exit.SymbolCooldownAfterFailedOrderS)*time.Second)
		e.events.DecisionEnd(decisionID, symbol, "failed", "order_placement_failed", nil)
		return
	}

	e.openBuyOrders[symbol] = fsm.ClientOrderID
	e.persistOpenOrders()

	snap := fsm.Snapshot()
	if snap.Status == domain.OrderStatusFilled {
		e.onBuyFilled(symbol, snap, now)
		e.events.DecisionEnd(decisionID, symbol, "filled", string(result.Reason), nil)
	} else {
		e.events.DecisionEnd(decisionID, symbol, "pending", string(result.Reason), nil)
	}
}

func (e *Engine) rollingWindow(symbol string) *trigger.RollingWindow {
	w, ok := e.windows[symbol]
	if !ok {
		lookback := time.Duration(e.cfg.Trigger.DropTriggerLookbackMin) * time.Minute
		if lookback <= 0 {
			lookback = 60 * time.Minute
		}
		w = trigger.NewRollingWindow(lookback)
		e.windows[symbol] = w
	}
	return w
}

// onBuyFilled creates the position via the PnL service, resets the
// mode-4 anchor to the fill price, and releases the open-buy-order
// tracking entry.
func (e *Engine) onBuyFilled(symbol string, snap order.Snapshot, now time.Time) {
	e.pnlSvc.ApplyFill(domain.Fill{
		Symbol:     symbol,
		Side:       domain.SideBuy,
		Qty:        snap.FilledQty,
		AvgPrice:   snap.AvgFillPrice,
		FeeQuote:   snap.TotalFees,
		TimestampS: now.Unix(),
	})

	pos := &domain.Position{
		Symbol:           symbol,
		Quantity:         snap.FilledQty,
		EntryPrice:       snap.AvgFillPrice,
		EntryTimeS:       now.Unix(),
		EnableTrailing:   e.cfg.Trigger.UseTrailingStop,
		MaxHoldMinutes:   e.cfg.Trading.TradeTTLMin,
		StopLossActive:   e.cfg.Trigger.StopLossThreshold > 0,
		TakeProfitActive: e.cfg.Trigger.TakeProfitThreshold > 0,
	}
	if pos.StopLossActive {
		pos.StopLossPrice = snap.AvgFillPrice.Mul(decimal.NewFromFloat(1 - e.cfg.Trigger.StopLossThreshold/100))
	}
	if pos.TakeProfitActive {
		pos.TakeProfitPrice = snap.AvgFillPrice.Mul(decimal.NewFromFloat(1 + e.cfg.Trigger.TakeProfitThreshold/100))
	}
	e.positions[symbol] = pos
	e.persistPositions()

	e.anchors.ResetAnchor(symbol, snap.AvgFillPrice, now)
	delete(e.openBuyOrders, symbol)
	e.persistOpenOrders()
	e.cooldowns.Set(symbol, now, time.Duration(e.cfg.Exit.SymbolCooldownAfterFailedOrderS)*time.Second)

	e.events.OrderFilled(symbol, string(domain.SideBuy), snap.AvgFillPrice.String(), snap.FilledQty.String(), snap.TotalFees.String())
}
