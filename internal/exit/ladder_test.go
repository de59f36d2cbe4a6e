package exit

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/order"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/logging"
)

func newTestLadder(t *testing.T, cfg LadderConfig) (*Ladder, *exchange.MockClient) {
	t.Helper()
	log, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	client := exchange.NewMockClient()
	client.SetMarket(domain.MarketInfo{
		Symbol:       "BTCUSDT",
		PriceTick:    decimal.NewFromFloat(0.01),
		QuantityStep: decimal.NewFromFloat(0.0001),
		MinQuantity:  decimal.NewFromFloat(0.0001),
		MinNotional:  decimal.NewFromInt(10),
	})
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(100), Ask: decimal.NewFromFloat(100.1)})

	registry := order.NewRegistry()
	placer := order.NewPlacer(client, registry, log)
	ladder := NewLadder(cfg, client, placer, log)
	return ladder, client
}

func TestLadder_PlaceStepEscalatesBelowBid(t *testing.T) {
	cfg := LadderConfig{PremiumsBps: []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100)}}
	ladder, _ := newTestLadder(t, cfg)

	fsm, exhausted, err := ladder.PlaceStep(context.Background(), "BTCUSDT", decimal.NewFromFloat(0.5), 0)
	require.NoError(t, err)
	assert.False(t, exhausted)
	assert.True(t, fsm.Price.LessThan(decimal.NewFromInt(100)))
}

func TestLadder_FallsBackToMarketWhenExhausted(t *testing.T) {
	cfg := LadderConfig{PremiumsBps: []decimal.Decimal{decimal.NewFromInt(50)}}
	ladder, _ := newTestLadder(t, cfg)

	fsm, exhausted, err := ladder.PlaceStep(context.Background(), "BTCUSDT", decimal.NewFromFloat(0.5), 1)
	require.NoError(t, err)
	assert.True(t, exhausted)
	assert.NotNil(t, fsm)
}

func TestLadder_NeverMarketSellsErrorsInsteadOfFallback(t *testing.T) {
	cfg := LadderConfig{PremiumsBps: []decimal.Decimal{decimal.NewFromInt(50)}, NeverMarketSells: true}
	ladder, _ := newTestLadder(t, cfg)

	_, exhausted, err := ladder.PlaceStep(context.Background(), "BTCUSDT", decimal.NewFromFloat(0.5), 1)
	assert.True(t, exhausted)
	assert.Error(t, err)
}

func TestWithinPct(t *testing.T) {
	assert.True(t, withinPct(decimal.NewFromInt(101), decimal.NewFromInt(100), 2))
	assert.False(t, withinPct(decimal.NewFromInt(105), decimal.NewFromInt(100), 2))
	assert.False(t, withinPct(decimal.NewFromInt(1), decimal.Zero, 2))
}

func TestLadder_RestoreMissingPlacesFreshProtection(t *testing.T) {
	cfg := LadderConfig{PremiumsBps: []decimal.Decimal{decimal.NewFromInt(50)}}
	ladder, _ := newTestLadder(t, cfg)

	pos := &domain.Position{
		Symbol:         "BTCUSDT",
		Quantity:       decimal.NewFromFloat(0.5),
		StopLossActive: true,
		StopLossPrice:  decimal.NewFromInt(90),
	}
	orderID, err := ladder.RestoreMissing(context.Background(), pos)
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)
}
