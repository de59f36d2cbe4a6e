package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	apperrors "github.com/Strauch27/trading-bot-professional-sub000/pkg/errors"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/logging"
)

func newTestPlacer(t *testing.T) (*Placer, *exchange.MockClient, *Registry) {
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
	registry := NewRegistry()
	placer := NewPlacer(client, registry, log)
	return placer, client, registry
}

func TestPlacer_PlaceFillsImmediatelyAgainstMock(t *testing.T) {
	placer, _, _ := newTestPlacer(t)

	fsm, err := placer.Place(context.Background(), PlaceRequest{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: decimal.NewFromFloat(0.5),
		Price:    decimal.NewFromInt(100),
		TIF:      domain.TIFGTC,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, fsm.Status())
}

func TestPlacer_PlaceIsIdempotentOnSameClientOrderID(t *testing.T) {
	placer, _, registry := newTestPlacer(t)

	req := PlaceRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Quantity:      decimal.NewFromFloat(0.5),
		Price:         decimal.NewFromInt(100),
		TIF:           domain.TIFGTC,
		ClientOrderID: "bot-fixed-id",
	}

	first, err := placer.Place(context.Background(), req)
	require.NoError(t, err)

	second, err := placer.Place(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Len(t, registry.Snapshots(), 1)
}

func TestPlacer_UnknownSymbolRejected(t *testing.T) {
	placer, _, _ := newTestPlacer(t)

	_, err := placer.Place(context.Background(), PlaceRequest{
		Symbol:   "NOPE",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(100),
	})
	assert.Error(t, err)
}

func TestPlacer_QtyBelowMinNotionalRoundedUp(t *testing.T) {
	placer, _, _ := newTestPlacer(t)

	// 0.00005 * 100 = 0.005, below the 10 min notional; CeilToStepWithMinNotional
	// should round the quantity up to satisfy it rather than failing.
	fsm, err := placer.Place(context.Background(), PlaceRequest{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: decimal.NewFromFloat(0.00005),
		Price:    decimal.NewFromInt(100),
		TIF:      domain.TIFGTC,
	})
	require.NoError(t, err)
	snap := fsm.Snapshot()
	assert.True(t, snap.TotalQty.Mul(decimal.NewFromInt(100)).GreaterThanOrEqual(decimal.NewFromInt(10)))
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("bot-missing")
	assert.False(t, ok)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(apperrors.ErrNetwork))
	assert.True(t, isTransient(apperrors.ErrRateLimitExceeded))
	assert.False(t, isTransient(apperrors.ErrInvalidRequest))
}
