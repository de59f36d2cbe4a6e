// Package eventlog emits the structured, newline-delimited JSON events a
// session's logs/*.jsonl files are expected to contain: order lifecycle,
// decision tracing, exits, heartbeats, and config snapshots. Every event
// carries a ts (RFC3339 ms) and event_type; callers attach the rest.
package eventlog

import (
	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
)

// Logger writes one structured event per call through an ILogger whose
// core was built with logging.NewZapLoggerWithEventLog, so every emit call
// also lands in logs/events-<date>.jsonl.
type Logger struct {
	log core.ILogger
}

func New(log core.ILogger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) emit(eventType string, fields ...interface{}) {
	l.log.Info(eventType, append([]interface{}{"event_type", eventType}, fields...)...)
}

// OrderSent records an order submission attempt before the exchange
// acknowledges it.
func (l *Logger) OrderSent(symbol, side, clientOrderID string, price, qty, notional interface{}, tif string, postOnly bool) {
	l.emit("ORDER_SENT",
		"symbol", symbol, "side", side, "price", price, "qty", qty,
		"notional", notional, "tif", tif, "post_only", postOnly,
		"client_order_id", clientOrderID)
}

// OrderUpdate records an order-status transition reported by the exchange.
func (l *Logger) OrderUpdate(clientOrderID, orderID, status string, filled, remaining interface{}, avgPrice interface{}) {
	l.emit("ORDER_UPDATE",
		"client_order_id", clientOrderID, "order_id", orderID, "status", status,
		"filled", filled, "remaining", remaining, "average_price", avgPrice)
}

// OrderFilled records a completed (fully or partially) fill.
func (l *Logger) OrderFilled(symbol, side string, price, qty, feeQuote interface{}) {
	l.emit("ORDER_FILLED", "symbol", symbol, "side", side, "price", price, "qty", qty, "fee_quote", feeQuote)
}

// TradeFill records a fill from the PnL ledger's point of view, including
// slippage against the decision-time reference price when known.
func (l *Logger) TradeFill(symbol, side string, price, qty, feeQuote interface{}, slippageBp interface{}) {
	l.emit("TRADE_FILL", "symbol", symbol, "side", side, "price", price, "qty", qty,
		"fee_quote", feeQuote, "slippage_bp", slippageBp)
}

// DecisionStart/DecisionEnd bracket one buy-evaluation cycle, tied together
// by a per-call decision-id for latency and audit tracing.
func (l *Logger) DecisionStart(decisionID, symbol string) {
	l.emit("DECISION_START", "decision_id", decisionID, "symbol", symbol)
}

func (l *Logger) DecisionEnd(decisionID, symbol, decision, reason string, failedGuards []string) {
	l.emit("DECISION_END", "decision_id", decisionID, "symbol", symbol, "decision", decision, "reason", reason, "failed_guards", failedGuards)
}

// GuardBlockSummary records which guards rejected a buy attempt.
func (l *Logger) GuardBlockSummary(symbol string, failedGuards []string) {
	l.emit("GUARD_BLOCK_SUMMARY", "symbol", symbol, "failed_guards", failedGuards)
}

// ExitFilled records a completed exit fill and the rule that triggered it.
func (l *Logger) ExitFilled(symbol string, fillPrice, fillQty interface{}, reason string) {
	l.emit("EXIT_FILLED", "symbol", symbol, "fill_price", fillPrice, "fill_qty", fillQty, "reason", reason)
}

// Heartbeat is the periodic liveness record the engine writes once per
// cycle next to Coordinator.Beat; the heartbeat monitor watches
// Coordinator.Beat, not this event.
func (l *Logger) Heartbeat(cycle int64, positions, symbols int) {
	l.emit("HEARTBEAT", "cycle", cycle, "positions", positions, "symbols", symbols)
}

// ShutdownHeartbeat records the shutdown coordinator's own diagnostic
// snapshot at the moment a shutdown is requested.
func (l *Logger) ShutdownHeartbeat(registeredComponents []string, registeredThreads []string, recentHeartbeats []string, stats map[string]interface{}) {
	l.emit("SHUTDOWN_HEARTBEAT",
		"registered_components", registeredComponents,
		"registered_threads", registeredThreads,
		"recent_heartbeats", recentHeartbeats,
		"stats", stats)
}

// ConfigSnapshot records the effective configuration at startup or on
// demand.
func (l *Logger) ConfigSnapshot(config interface{}, engineVersion, snapshotReason string) {
	l.emit("CONFIG_SNAPSHOT", "config", config, "engine_version", engineVersion, "snapshot_reason", snapshotReason)
}

// ConfigChange records a single runtime parameter override.
func (l *Logger) ConfigChange(parameter string, oldValue, newValue interface{}, reason string) {
	l.emit("CONFIG_CHANGE", "parameter", parameter, "old", oldValue, "new", newValue, "reason", reason)
}
