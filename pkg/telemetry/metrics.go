package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnLRealizedTotal   = "trading_bot_pnl_realized_total"
	MetricPnLUnrealized      = "trading_bot_pnl_unrealized"
	MetricPositionsOpen      = "trading_bot_positions_open"
	MetricOrdersPlacedTotal  = "trading_bot_orders_placed_total"
	MetricOrdersFilledTotal  = "trading_bot_orders_filled_total"
	MetricVolumeTotal        = "trading_bot_volume_quote_total"
	MetricPositionSize       = "trading_bot_position_size"
	MetricLatencyExchange    = "trading_bot_latency_exchange_ms"
	MetricLatencyTickToTrade = "trading_bot_latency_tick_to_trade_ms"
	MetricGuardBlockedTotal  = "trading_bot_guard_blocked_total"
	MetricCooldownActive     = "trading_bot_cooldown_active"
	MetricExitQueueDepth     = "trading_bot_exit_queue_depth"
	MetricEquityDrawdownPct  = "trading_bot_equity_drawdown_pct"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PnLRealizedTotal   metric.Float64Counter
	PnLUnrealized      metric.Float64ObservableGauge
	PositionsOpen      metric.Int64ObservableGauge
	OrdersPlacedTotal  metric.Int64Counter
	OrdersFilledTotal  metric.Int64Counter
	VolumeTotal        metric.Float64Counter
	PositionSize       metric.Float64ObservableGauge
	LatencyExchange    metric.Float64Histogram
	LatencyTickToTrade metric.Float64Histogram
	GuardBlockedTotal  metric.Int64Counter
	CooldownActive     metric.Int64ObservableGauge
	ExitQueueDepth     metric.Int64ObservableGauge
	EquityDrawdownPct  metric.Float64ObservableGauge

	// State for observable gauges
	mu                sync.RWMutex
	unrealizedPnLMap  map[string]float64
	positionSizeMap   map[string]float64
	positionsOpen     int64
	cooldownActiveMap map[string]int64
	exitQueueDepth    int64
	peakEquity        float64
	drawdownPct       float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap:  make(map[string]float64),
			positionSizeMap:   make(map[string]float64),
			cooldownActiveMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss in quote currency"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled"))
	if err != nil {
		return err
	}

	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total traded notional in quote currency"))
	if err != nil {
		return err
	}

	m.GuardBlockedTotal, err = meter.Int64Counter(MetricGuardBlockedTotal, metric.WithDescription("Total buy decisions blocked by a market guard"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyTickToTrade, err = meter.Float64Histogram(MetricLatencyTickToTrade, metric.WithDescription("Time from price update to order placement"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL per symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current position size per symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.positionSizeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionsOpen, err = meter.Int64ObservableGauge(MetricPositionsOpen, metric.WithDescription("Number of currently open positions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.positionsOpen)
			return nil
		}))
	if err != nil {
		return err
	}

	m.CooldownActive, err = meter.Int64ObservableGauge(MetricCooldownActive, metric.WithDescription("Cooldown active state per symbol (1=active, 0=clear)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.cooldownActiveMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ExitQueueDepth, err = meter.Int64ObservableGauge(MetricExitQueueDepth, metric.WithDescription("Pending exit signals awaiting execution"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.exitQueueDepth)
			return nil
		}))
	if err != nil {
		return err
	}

	m.EquityDrawdownPct, err = meter.Float64ObservableGauge(MetricEquityDrawdownPct, metric.WithDescription("Drop from peak-observed equity, as a percentage"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.drawdownPct)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordCycleLatency feeds one control-loop latency sample into the
// exchange-call histogram. A nil instrument (telemetry never
// initialized) is a silent no-op rather than a panic, so callers don't
// need to special-case a not-yet-wired meter.
func (m *MetricsHolder) RecordCycleLatency(ctx context.Context, ms float64) {
	if m.LatencyExchange == nil {
		return
	}
	m.LatencyExchange.Record(ctx, ms)
}

// RecordOrderPlaced increments the orders-placed counter.
func (m *MetricsHolder) RecordOrderPlaced(ctx context.Context) {
	if m.OrdersPlacedTotal == nil {
		return
	}
	m.OrdersPlacedTotal.Add(ctx, 1)
}

// RecordOrderFilled increments the orders-filled counter; comparing it
// against RecordOrderPlaced's total is the fill-rate signal.
func (m *MetricsHolder) RecordOrderFilled(ctx context.Context) {
	if m.OrdersFilledTotal == nil {
		return
	}
	m.OrdersFilledTotal.Add(ctx, 1)
}

// SetEquity updates the running peak equity and recomputes the
// drawdown-from-peak percentage observed by EquityDrawdownPct.
func (m *MetricsHolder) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity > 0 {
		m.drawdownPct = (m.peakEquity - equity) / m.peakEquity * 100
	} else {
		m.drawdownPct = 0
	}
}

// Helpers to update observable state

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetPositionSize(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[symbol] = size
}

func (m *MetricsHolder) SetPositionsOpen(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsOpen = count
}

func (m *MetricsHolder) SetCooldownActive(symbol string, active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldownActiveMap[symbol] = val
}

func (m *MetricsHolder) SetExitQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitQueueDepth = depth
}

func (m *MetricsHolder) GetUnrealizedPnL() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.unrealizedPnLMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetPositionSize() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.positionSizeMap {
		res[k] = v
	}
	return res
}
