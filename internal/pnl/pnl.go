// Package pnl is the single source of truth for realized/unrealized
// profit and loss. Grounded on the now-superseded
// internal/trading/position/manager.go's weighted-average-entry formula
// and lock-ordering discipline (global mutex before per-symbol state),
// generalized from grid inventory slots to one position per symbol.
package pnl

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

type positionState struct {
	quantity        decimal.Decimal
	entryPrice      decimal.Decimal
	entryFeePerUnit decimal.Decimal
}

// Summary is the report get_summary() returns.
type Summary struct {
	RealizedPnLNet decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Positions      []PositionView
}

// PositionView is a read-only position snapshot used in summaries.
type PositionView struct {
	Symbol     string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
}

// Service tracks per-symbol position state and realized PnL. All mutators
// are guarded by a single mutex (positions are engine-owned,
// mutated only from the engine thread; external readers get copies).
type Service struct {
	mu             sync.Mutex
	positions      map[string]*positionState
	realizedPnLNet decimal.Decimal
}

func New() *Service {
	return &Service{positions: make(map[string]*positionState)}
}

// ApplyFill consumes one FillEvent in arrival order (fills retain
// the order they arrive at the service, not necessarily exchange-trade
// order).
func (s *Service) ApplyFill(fill domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch fill.Side {
	case domain.SideBuy:
		s.applyBuyLocked(fill)
	case domain.SideSell:
		s.applySellLocked(fill)
	}
}

func (s *Service) applyBuyLocked(fill domain.Fill) {
	pos, ok := s.positions[fill.Symbol]
	if !ok {
		s.positions[fill.Symbol] = &positionState{
			quantity:        fill.Qty,
			entryPrice:      fill.AvgPrice,
			entryFeePerUnit: feePerUnit(fill),
		}
		return
	}

	prevQty := pos.quantity
	prevEntry := pos.entryPrice
	prevFeeTotal := pos.entryFeePerUnit.Mul(prevQty)

	newQty := prevQty.Add(fill.Qty)
	if newQty.IsPositive() {
		pos.entryPrice = prevQty.Mul(prevEntry).Add(fill.Qty.Mul(fill.AvgPrice)).Div(newQty)
		pos.entryFeePerUnit = prevFeeTotal.Add(fill.FeeQuote).Div(newQty)
	}
	pos.quantity = newQty
}

func feePerUnit(fill domain.Fill) decimal.Decimal {
	if fill.Qty.IsZero() {
		return decimal.Zero
	}
	return fill.FeeQuote.Div(fill.Qty)
}

func (s *Service) applySellLocked(fill domain.Fill) {
	pos, ok := s.positions[fill.Symbol]
	if !ok {
		return
	}

	sellQty := decimal.Min(fill.Qty, pos.quantity)
	entryFeeAttribution := pos.entryFeePerUnit.Mul(sellQty)
	realized := sellQty.Mul(fill.AvgPrice.Sub(pos.entryPrice)).Sub(fill.FeeQuote).Sub(entryFeeAttribution)
	s.realizedPnLNet = s.realizedPnLNet.Add(realized)

	pos.quantity = pos.quantity.Sub(sellQty)
	if pos.quantity.LessThanOrEqual(decimal.Zero) {
		delete(s.positions, fill.Symbol)
	}
}

// UnrealizedPnL is a pure function of (qty, entry_price, entry_fee_per_unit,
// current_price); it is never persisted.
func (s *Service) UnrealizedPnL(symbol string, currentPrice decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return unrealized(pos.quantity, pos.entryPrice, pos.entryFeePerUnit, currentPrice)
}

func unrealized(qty, entryPrice, entryFeePerUnit, currentPrice decimal.Decimal) decimal.Decimal {
	grossPnL := qty.Mul(currentPrice.Sub(entryPrice))
	feeReserve := entryFeePerUnit.Mul(qty)
	return grossPnL.Sub(feeReserve)
}

// GetSummary reports realized/unrealized PnL and the current position
// list. prices supplies the current price per symbol for the unrealized
// computation; symbols with no price entry are skipped from the
// unrealized total but still appear in Positions.
func (s *Service) GetSummary(prices map[string]decimal.Decimal) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{RealizedPnLNet: s.realizedPnLNet}
	for symbol, pos := range s.positions {
		summary.Positions = append(summary.Positions, PositionView{
			Symbol:     symbol,
			Quantity:   pos.quantity,
			EntryPrice: pos.entryPrice,
		})
		if price, ok := prices[symbol]; ok {
			summary.UnrealizedPnL = summary.UnrealizedPnL.Add(unrealized(pos.quantity, pos.entryPrice, pos.entryFeePerUnit, price))
		}
	}
	return summary
}

// Position returns a copy of the tracked state for symbol, if any.
func (s *Service) Position(symbol string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return domain.Position{
		Symbol:          symbol,
		Quantity:        pos.quantity,
		EntryPrice:      pos.entryPrice,
		EntryFeePerUnit: pos.entryFeePerUnit,
	}, true
}
