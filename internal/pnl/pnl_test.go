package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

func TestService_BuyThenFullSellRealizesPnL(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.NewFromFloat(0.1)})
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideSell, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(110), FeeQuote: decimal.NewFromFloat(0.1)})

	summary := s.GetSummary(nil)
	// (110-100)*1 - 0.1 (sell fee) - 0.1 (entry fee attribution) = 9.8
	assert.True(t, summary.RealizedPnLNet.Equal(decimal.NewFromFloat(9.8)), summary.RealizedPnLNet.String())
	assert.Empty(t, summary.Positions)
}

func TestService_WeightedAverageEntryOnSecondBuy(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.Zero})
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(120), FeeQuote: decimal.Zero})

	pos, ok := s.Position("BTCUSDT")
	assert.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(110)))
}

func TestService_PartialSellKeepsResidualPosition(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.Zero})
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideSell, Qty: decimal.NewFromInt(4), AvgPrice: decimal.NewFromInt(110), FeeQuote: decimal.Zero})

	pos, ok := s.Position("BTCUSDT")
	assert.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100))) // entry price unaffected by sells
}

func TestService_SellWithoutPositionIsNoOp(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideSell, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.Zero})
	summary := s.GetSummary(nil)
	assert.True(t, summary.RealizedPnLNet.IsZero())
}

func TestService_UnrealizedPnL(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(2), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.NewFromInt(2)})

	unrealizedPnl := s.UnrealizedPnL("BTCUSDT", decimal.NewFromInt(110))
	// gross: 2*(110-100)=20; fee reserve: entryFeePerUnit(1)*2=2 => 18
	assert.True(t, unrealizedPnl.Equal(decimal.NewFromInt(18)), unrealizedPnl.String())
}

func TestService_UnrealizedPnLUnknownSymbolIsZero(t *testing.T) {
	s := New()
	assert.True(t, s.UnrealizedPnL("NOPE", decimal.NewFromInt(1)).IsZero())
}

func TestService_GetSummarySkipsUnrealizedWithoutPrice(t *testing.T) {
	s := New()
	s.ApplyFill(domain.Fill{Symbol: "BTCUSDT", Side: domain.SideBuy, Qty: decimal.NewFromInt(1), AvgPrice: decimal.NewFromInt(100), FeeQuote: decimal.Zero})

	summary := s.GetSummary(map[string]decimal.Decimal{})
	assert.Len(t, summary.Positions, 1)
	assert.True(t, summary.UnrealizedPnL.IsZero())
}
