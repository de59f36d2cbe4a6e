// Package engine is the trading engine orchestrator: a single control
// loop running on one dedicated goroutine that drives market-data
// refresh, exit processing, position maintenance, and buy evaluation
// every cycle. Grounded on the now-superseded internal/engine/simple's
// persist-before-apply pattern, generalized from grid slots to one
// drop-trigger position per symbol.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/anchor"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/config"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/cooldown"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/eventlog"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exit"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/guard"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/marketdata"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/order"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/pnl"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/shutdown"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/state"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/trigger"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/telemetry"
	"github.com/google/uuid"
)

const cycleQuantum = 500 * time.Millisecond

// Engine owns the positions map, open-buy-order tracking, and watchlist;
// every mutation happens from the single Run goroutine.
type Engine struct {
	cfg    *config.Config
	client exchange.Client
	log    core.ILogger
	events *eventlog.Logger

	market     *marketdata.Provider
	anchors    *anchor.Manager
	dropTrig   *trigger.DropTrigger
	stabilizer *trigger.Stabilizer
	windows    map[string]*trigger.RollingWindow
	guards     *guard.Composite
	registry   *order.Registry
	placer     *order.Placer
	exitQueue  *exit.Queue
	ladder     *exit.Ladder
	pnlSvc     *pnl.Service
	cooldowns  *cooldown.Tracker
	coord      *shutdown.Coordinator

	positions       map[string]*domain.Position
	openBuyOrders   map[string]string // symbol -> client order id
	positionsPath   string
	openOrdersPath  string

	lastMarketUpdate   time.Time
	lastExitProcessing time.Time
	lastPositionCheck  time.Time
	lastExtendedHB     time.Time
	lastPerfSummary    time.Time
	cycle              int64
}

// New wires every component with the engine-owned state it orchestrates.
func New(cfg *config.Config, client exchange.Client, log core.ILogger, events *eventlog.Logger, coord *shutdown.Coordinator) *Engine {
	mdCfg := marketdata.DefaultConfig()
	market := marketdata.New(mdCfg, client, log)
	market.SetUniverse(cfg.Trading.Symbols)

	anchorCfg := anchor.Config{
		Mode:                 anchor.Mode(cfg.Trigger.DropTriggerMode),
		ClampMaxAbovePeakPct: cfg.Trigger.AnchorClampMaxAbovePeakPct,
		MaxStartDropPct:      cfg.Trigger.AnchorMaxStartDropPct,
		StaleMinutes:         cfg.Trigger.AnchorStaleMinutes,
		MaxAgeHours:          cfg.Trigger.AnchorMaxAgeHours,
		PersistPath:          cfg.App.SessionDir + "/state/anchors.json",
	}
	anchors := anchor.New(anchorCfg)

	dropTrig := trigger.NewDropTrigger(trigger.Config{
		ThresholdBps:  decimal.NewFromInt(1).Sub(decimal.NewFromFloat(cfg.Trigger.DropTriggerValue)).Mul(decimal.NewFromInt(10_000)),
		HysteresisBps: decimal.NewFromFloat(cfg.Trigger.HysteresisBps),
		Debounce:      time.Duration(cfg.Trigger.DebounceS) * time.Second,
	})
	stabilizer := trigger.NewStabilizer(cfg.Trigger.ConfirmTicks)

	guardCfg := guard.Config{
		UseSpread:        cfg.Guards.UseSpreadGuard,
		MaxSpreadBps:     decimal.NewFromFloat(cfg.Guards.MaxSpreadBpsEntry),
		UseSMA:           cfg.Guards.UseSMAGuard,
		SMAWindow:        cfg.Guards.SMAWindow,
		SMAMinRatio:      decimal.NewFromInt(1),
		UseVolume:        cfg.Guards.UseVolumeGuard,
		VolumeWindow:     20,
		VolumeFactor:     decimal.NewFromFloat(0.5),
		UseVolatility:    cfg.Guards.UseVolatilityGuard,
		VolWindow:        20,
		MinVolSigmaBps:   decimal.NewFromFloat(cfg.Guards.MaxVolatilityPct * 100),
		UseBTCFilter:     cfg.Guards.UseBTCFilterGuard,
		BTCThreshold:     decimal.NewFromFloat(1 - cfg.Guards.BTCMaxDropPct/100),
		UseFallingCoins:  cfg.Guards.UseFallingCoinsGuard,
		FallingThreshold: decimal.NewFromFloat(cfg.Guards.FallingCoinsMaxPct / 100),
	}
	guards := guard.NewComposite(guardCfg, market, log)

	registry := order.NewRegistry()
	placer := order.NewPlacer(client, registry, log)

	ladder := exit.NewLadder(exit.LadderConfig{
		PremiumsBps:      bpsLadder(cfg.Exit.ExitLadderBps, cfg.Exit.ExitEscalationBps),
		NeverMarketSells: cfg.Exit.NeverMarketSells,
	}, client, placer, log)

	e := &Engine{
		cfg:            cfg,
		client:         client,
		log:            log.WithField("component", "engine"),
		events:         events,
		market:         market,
		anchors:        anchors,
		dropTrig:       dropTrig,
		stabilizer:     stabilizer,
		windows:        make(map[string]*trigger.RollingWindow),
		guards:         guards,
		registry:       registry,
		placer:         placer,
		exitQueue:      exit.NewQueue(200, 2*time.Second),
		ladder:         ladder,
		pnlSvc:         pnl.New(),
		cooldowns:      cooldown.New(),
		coord:          coord,
		positions:      make(map[string]*domain.Position),
		openBuyOrders:  make(map[string]string),
		positionsPath:  cfg.App.SessionDir + "/state/positions.json",
		openOrdersPath: cfg.App.SessionDir + "/state/open_buy_orders.json",
	}
	coord.RegisterComponent("guard_composite", guards)
	coord.RegisterComponent("marketdata_provider", market)
	return e
}

func bpsLadder(base, escalation float64) []decimal.Decimal {
	rungs := []float64{base, base + escalation, base + 2*escalation, base + 4*escalation}
	out := make([]decimal.Decimal, 0, len(rungs))
	for _, r := range rungs {
		if r <= 0 {
			continue
		}
		out = append(out, decimal.NewFromFloat(r))
	}
	return out
}

// Load restores persisted anchors/positions/open-order state on startup.
func (e *Engine) Load() error {
	if err := e.anchors.Load(); err != nil {
		return err
	}
	var positions []domain.Position
	if err := state.LoadJSON(e.positionsPath, &positions); err != nil {
		return err
	}
	for i := range positions {
		p := positions[i]
		e.positions[p.Symbol] = &p
	}
	return state.LoadJSON(e.openOrdersPath, &e.openBuyOrders)
}

func (e *Engine) persistPositions() {
	list := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		list = append(list, *p)
	}
	if err := state.SaveJSON(e.positionsPath, list); err != nil {
		e.log.Error("persist positions failed", "error", err.Error())
	}
}

func (e *Engine) persistOpenOrders() {
	if err := state.SaveJSON(e.openOrdersPath, e.openBuyOrders); err != nil {
		e.log.Error("persist open orders failed", "error", err.Error())
	}
}

// Run is the single control loop; it satisfies
// bootstrap.Runner.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Load(); err != nil {
		e.log.Error("failed to load persisted state", "error", err.Error())
	}

	done := e.coord.RegisterThread()
	defer close(done)

	ticker := time.NewTicker(cycleQuantum)
	defer ticker.Stop()

	for {
		if e.coord.IsShutdownRequested() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	e.cycle++
	now := time.Now()
	e.coord.Beat("engine_cycle")
	e.events.Heartbeat(e.cycle, len(e.positions), len(e.cfg.Trading.Symbols))

	if now.Sub(e.lastMarketUpdate) >= 5*time.Second {
		e.refreshMarketData(ctx)
		e.lastMarketUpdate = now
	}

	if now.Sub(e.lastExitProcessing) >= time.Second {
		e.processExits(ctx, 5)
		e.lastExitProcessing = now
	}

	if now.Sub(e.lastPositionCheck) >= 2*time.Second {
		e.checkPositions(ctx, now)
		e.lastPositionCheck = now
	}

	e.evaluateBuys(ctx, now)

	if now.Sub(e.lastExtendedHB) >= 30*time.Second {
		e.emitExtendedHeartbeat(now)
		e.lastExtendedHB = now
	}

	if now.Sub(e.lastPerfSummary) >= 60*time.Second {
		e.emitPerformanceSummary(now)
		e.lastPerfSummary = now
	}
}

func (e *Engine) refreshMarketData(ctx context.Context) {
	symbols := make([]string, 0, len(e.cfg.Trading.Symbols)+len(e.positions)+1)
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for _, s := range e.cfg.Trading.Symbols {
		add(s)
	}
	for s := range e.positions {
		add(s)
	}
	add("BTC/USDT")

	start := time.Now()
	results := e.market.UpdateMarketData(ctx, symbols)
	latencyMs := float64(time.Since(start).Milliseconds())
	telemetry.GetGlobalMetrics().RecordCycleLatency(ctx, latencyMs)

	for symbol, ok := range results {
		if !ok {
			e.log.Warn("market data refresh failed", "symbol", symbol)
		}
	}
}

func (e *Engine) processExits(ctx context.Context, maxPerCycle int) {
	signals := e.exitQueue.Drain(maxPerCycle)
	for _, sig := range signals {
		e.placeExit(ctx, sig)
	}
}

func (e *Engine) placeExit(ctx context.Context, sig exit.Signal) {
	fsm, exhausted, err := e.ladder.PlaceStep(ctx, sig.Symbol, sig.PositionSnapshot.Quantity, 0)
	if err != nil {
		e.log.Error("exit placement failed", "symbol", sig.Symbol, "reason", string(sig.Reason), "error", err.Error())
		e.cooldowns.Set(sig.Symbol, time.Now(), time.Duration(e.cfg.Exit.SymbolCooldownAfterFailedOrderS)*time.Second)
		return
	}
	_ = exhausted
	if pos, ok := e.positions[sig.Symbol]; ok {
		pos.ActiveExitOrderID = fsm.OrderID
	}
	if fsm.Status() == domain.OrderStatusFilled {
		snap := fsm.Snapshot()
		e.events.ExitFilled(sig.Symbol, snap.AvgFillPrice.String(), snap.FilledQty.String(), string(sig.Reason))
	}
}

func (e *Engine) checkPositions(ctx context.Context, now time.Time) {
	trailingActivation := decimal.NewFromFloat(e.cfg.Trigger.TrailingActivationPct)
	trailingDistance := decimal.NewFromFloat(e.cfg.Trigger.TrailingDistancePct)

	for symbol, pos := range e.positions {
		price, err := e.market.GetPrice(ctx, symbol, true)
		if err != nil {
			continue
		}

		if pos.ActiveExitOrderID != "" {
			if _, err := e.client.FetchOrder(ctx, pos.ActiveExitOrderID, symbol); err != nil {
				if newID, restoreErr := e.ladder.RestoreMissing(ctx, pos); restoreErr == nil {
					pos.ActiveExitOrderID = newID
				}
			}
		}

		eval := exit.Evaluate(pos, price, now, trailingActivation, trailingDistance)
		if eval.Triggered {
			e.exitQueue.Push(exit.Signal{
				Symbol:           symbol,
				Reason:           eval.Rule,
				PositionSnapshot: *pos,
				CurrentPrice:     price,
			}, now)
		}
	}

	e.persistPositions()
}

func (e *Engine) emitExtendedHeartbeat(now time.Time) {
	prices := e.currentPrices()
	summary := e.pnlSvc.GetSummary(prices)
	e.log.Info("extended heartbeat", "event_type", "HEARTBEAT_EXTENDED", "unrealized_pnl", summary.UnrealizedPnL.String(), "realized_pnl", summary.RealizedPnLNet.String(), "open_positions", len(summary.Positions))
	e.recordEquityMetrics(summary)
	e.market.CleanupExpiredCache()
	removed := e.cooldowns.Sweep(now)
	if removed > 0 {
		e.log.Debug("cooldown sweep", "removed", removed)
	}
	failSummary := e.guards.Summary()
	if len(failSummary) > 0 {
		e.log.Info("guard block summary", "event_type", "GUARD_BLOCK_SUMMARY", "counts", failSummary)
	}
}

func (e *Engine) emitPerformanceSummary(now time.Time) {
	prices := e.currentPrices()
	summary := e.pnlSvc.GetSummary(prices)
	e.log.Info("performance summary", "event_type", "PERFORMANCE_SUMMARY", "realized_pnl_net", summary.RealizedPnLNet.String(), "unrealized_pnl", summary.UnrealizedPnL.String(), "positions", len(summary.Positions))
	e.recordEquityMetrics(summary)
}

// recordEquityMetrics feeds realized+unrealized PnL into the equity/
// drawdown gauge and refreshes the open-positions and exit-queue-depth
// gauges from current engine state.
func (e *Engine) recordEquityMetrics(summary pnl.Summary) {
	m := telemetry.GetGlobalMetrics()
	equity, _ := summary.RealizedPnLNet.Add(summary.UnrealizedPnL).Float64()
	m.SetEquity(equity)
	m.SetPositionsOpen(int64(len(e.positions)))
	m.SetExitQueueDepth(int64(e.exitQueue.Len()))
	for _, pv := range summary.Positions {
		size, _ := pv.Quantity.Float64()
		m.SetPositionSize(pv.Symbol, size)
	}
}

func (e *Engine) currentPrices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(e.positions))
	for symbol := range e.positions {
		if t, ok := e.market.Cached(symbol); ok {
			prices[symbol] = t.Last
		}
	}
	return prices
}

func newDecisionID() string {
	return uuid.NewString()
}
