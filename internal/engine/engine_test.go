package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/config"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/eventlog"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exit"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/shutdown"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/logging"
)

func newTestEngine(t *testing.T) (*Engine, *exchange.MockClient) {
	t.Helper()
	log, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.SessionDir = t.TempDir()
	cfg.Trading.Symbols = []string{"BTCUSDT"}
	cfg.Trading.MaxPositions = 5
	cfg.Trigger.DropTriggerMode = 1
	cfg.Trigger.TrailingActivationPct = 1
	cfg.Trigger.TrailingDistancePct = 0.5
	cfg.Exit.ExitLadderBps = 10
	cfg.Exit.ExitEscalationBps = 5

	client := exchange.NewMockClient()
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(100), Ask: decimal.NewFromFloat(100.1), Last: decimal.NewFromInt(100)})
	client.SetMarket(domain.MarketInfo{Symbol: "BTCUSDT", PriceTick: decimal.NewFromFloat(0.01), QuantityStep: decimal.NewFromFloat(0.0001), MinQuantity: decimal.NewFromFloat(0.0001), MinNotional: decimal.NewFromInt(5)})

	events := eventlog.New(log)
	coord := shutdown.New(log)
	e := New(cfg, client, log, events, coord)
	return e, client
}

func TestEngine_NewWiresAllComponents(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NotNil(t, e.market)
	assert.NotNil(t, e.guards)
	assert.NotNil(t, e.ladder)
	assert.Empty(t, e.positions)
}

func TestEngine_CheckPositionsTriggersHardStopLossExit(t *testing.T) {
	e, client := newTestEngine(t)
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(80), Ask: decimal.NewFromFloat(80.1), Last: decimal.NewFromInt(80)})

	e.positions["BTCUSDT"] = &domain.Position{
		Symbol:         "BTCUSDT",
		Quantity:       decimal.NewFromFloat(0.5),
		EntryPrice:     decimal.NewFromInt(100),
		StopLossActive: true,
		StopLossPrice:  decimal.NewFromInt(90),
	}

	e.checkPositions(context.Background(), time.Now())
	assert.Equal(t, 1, e.exitQueue.Len())
}

func TestEngine_CheckPositionsNoTriggerWhenAboveStop(t *testing.T) {
	e, _ := newTestEngine(t)
	e.positions["BTCUSDT"] = &domain.Position{
		Symbol:         "BTCUSDT",
		Quantity:       decimal.NewFromFloat(0.5),
		EntryPrice:     decimal.NewFromInt(100),
		StopLossActive: true,
		StopLossPrice:  decimal.NewFromInt(50),
	}

	e.checkPositions(context.Background(), time.Now())
	assert.Equal(t, 0, e.exitQueue.Len())
}

func TestEngine_ProcessExitsDrainsQueueAndPlacesOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	pos := domain.Position{Symbol: "BTCUSDT", Quantity: decimal.NewFromFloat(0.5)}
	e.positions["BTCUSDT"] = &pos
	e.exitQueue.Push(exit.Signal{Symbol: "BTCUSDT", Reason: exit.RuleHardSL, PositionSnapshot: pos}, time.Now())

	e.processExits(context.Background(), 5)
	assert.Equal(t, 0, e.exitQueue.Len())
	assert.NotEmpty(t, e.positions["BTCUSDT"].ActiveExitOrderID)
}

func TestBpsLadder_SkipsNonPositiveRungs(t *testing.T) {
	rungs := bpsLadder(0, 10)
	assert.Len(t, rungs, 3) // 0 skipped, 10, 20, 40 kept
}

func TestEngine_RunCycleAdvancesCounterAndBeatsHeartbeat(t *testing.T) {
	e, _ := newTestEngine(t)
	e.runCycle(context.Background())
	assert.Equal(t, int64(1), e.cycle)
	label, _, ok := e.coord.LastBeat()
	assert.True(t, ok)
	assert.Equal(t, "engine_cycle", label)
}
