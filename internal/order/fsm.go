// Package order implements the client-order-id generator and the order
// FSM: state transitions, cumulative weighted-average fill accounting,
// and the idempotent placement wrapper. Grounded on the now-superseded
// internal/trading/order/executor.go's idempotent-retry-then-reconcile
// shape.
package order

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/Strauch27/trading-bot-professional-sub000/pkg/errors"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// defaultFillTolerance is the default 0.1% slack applied when
// deciding an order has reached FILLED rather than staying PARTIAL.
const defaultFillTolerance = 0.001

var terminalStates = map[domain.OrderStatus]bool{
	domain.OrderStatusFilled:   true,
	domain.OrderStatusCanceled: true,
	domain.OrderStatusExpired:  true,
	domain.OrderStatusFailed:   true,
}

// validTransitions lists the non-terminal transitions the FSM accepts;
// terminal states never appear as a key (any transition out of one is a
// runtime error).
var validTransitions = map[domain.OrderStatus]map[domain.OrderStatus]bool{
	domain.OrderStatusNew: {
		domain.OrderStatusPending:  true,
		domain.OrderStatusPartial:  true,
		domain.OrderStatusFilled:   true,
		domain.OrderStatusCanceled: true,
		domain.OrderStatusExpired:  true,
		domain.OrderStatusFailed:   true,
	},
	domain.OrderStatusPending: {
		domain.OrderStatusPartial:  true,
		domain.OrderStatusFilled:   true,
		domain.OrderStatusCanceled: true,
		domain.OrderStatusExpired:  true,
		domain.OrderStatusFailed:   true,
	},
	domain.OrderStatusPartial: {
		domain.OrderStatusPartial:  true,
		domain.OrderStatusFilled:   true,
		domain.OrderStatusCanceled: true,
		domain.OrderStatusExpired:  true,
		domain.OrderStatusFailed:   true,
	},
}

// Transition is one audited state change, recorded in arrival order.
type Transition struct {
	From   domain.OrderStatus
	To     domain.OrderStatus
	Ts     time.Time
	Reason string
}

// FSM tracks one order's lifecycle and fill accumulation. Every mutator is
// guarded by mu; callers (the engine thread) never observe a mid-transition
// state, and a Snapshot copies out under the lock for other readers.
type FSM struct {
	mu sync.Mutex

	Symbol        string
	Side          domain.Side
	ClientOrderID string
	OrderID       string
	TotalQty      decimal.Decimal
	Price         decimal.Decimal
	TIF           domain.TimeInForce
	AutoTransition bool
	FillTolerance  float64

	status        domain.OrderStatus
	filledQty     decimal.Decimal
	avgFillPrice  decimal.Decimal
	totalFees     decimal.Decimal
	firstFillTS   time.Time
	failureReason string
	completedTS   time.Time
	history       []Transition
}

// NewFSM starts an order in state NEW.
func NewFSM(symbol string, side domain.Side, qty, price decimal.Decimal, tif domain.TimeInForce, clientOrderID string) *FSM {
	tol := defaultFillTolerance
	return &FSM{
		Symbol:         symbol,
		Side:           side,
		ClientOrderID:  clientOrderID,
		TotalQty:       qty,
		Price:          price,
		TIF:            tif,
		AutoTransition: true,
		FillTolerance:  tol,
		status:         domain.OrderStatusNew,
		filledQty:      decimal.Zero,
		avgFillPrice:   decimal.Zero,
		totalFees:      decimal.Zero,
	}
}

// Status returns the current state under the lock.
func (f *FSM) Status() domain.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Transition moves the FSM to next, rejecting transitions out of a
// terminal state or not in the valid-transition table.
func (f *FSM) Transition(next domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionLocked(next, "")
}

func (f *FSM) transitionLocked(next domain.OrderStatus, reason string) error {
	if terminalStates[f.status] {
		return fmt.Errorf("%w: order %s is %s", apperrors.ErrFSMTerminalTransition, f.ClientOrderID, f.status)
	}
	allowed, known := validTransitions[f.status]
	if !known || !allowed[next] {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrFSMInvalidTransition, f.status, next)
	}
	prev := f.status
	f.status = next
	// UTC with no monotonic reading, so a JSON round trip restores Ts exactly.
	f.history = append(f.history, Transition{From: prev, To: next, Ts: time.Now().UTC(), Reason: reason})
	if terminalStates[next] {
		f.completedTS = time.Now()
	}
	return nil
}

// RecordFill applies one fill to the cumulative weighted-average price and
// fee totals, then (if AutoTransition) advances PENDING->PARTIAL on first
// fill and PARTIAL->FILLED once the fill tolerance is met.
func (f *FSM) RecordFill(fillQty, fillPrice, fee decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if terminalStates[f.status] {
		return fmt.Errorf("%w: order %s is %s", apperrors.ErrFSMTerminalTransition, f.ClientOrderID, f.status)
	}

	if f.firstFillTS.IsZero() {
		f.firstFillTS = time.Now()
	}

	prevQty := f.filledQty
	prevAvg := f.avgFillPrice
	newQty := prevQty.Add(fillQty)
	if newQty.IsPositive() {
		f.avgFillPrice = prevQty.Mul(prevAvg).Add(fillQty.Mul(fillPrice)).Div(newQty)
	}
	f.filledQty = newQty
	f.totalFees = f.totalFees.Add(fee)

	if !f.AutoTransition {
		return nil
	}

	if f.status == domain.OrderStatusNew || f.status == domain.OrderStatusPending {
		if err := f.transitionLocked(domain.OrderStatusPartial, "fill_received"); err != nil {
			return err
		}
	}

	tol := f.FillTolerance
	if tol == 0 {
		tol = defaultFillTolerance
	}
	threshold := f.TotalQty.Mul(decimal.NewFromFloat(1 - tol))
	if f.filledQty.GreaterThanOrEqual(threshold) {
		return f.transitionLocked(domain.OrderStatusFilled, "fill_tolerance_met")
	}
	return nil
}

// Fail transitions to FAILED, recording a reason, unless already terminal
// (in which case the call is a silent no-op, consistent with idempotent
// shutdown/cleanup callers).
func (f *FSM) Fail(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if terminalStates[f.status] {
		return
	}
	f.failureReason = reason
	_ = f.transitionLocked(domain.OrderStatusFailed, reason)
}

// Expire transitions an IOC order that never filled to EXPIRED.
func (f *FSM) Expire() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionLocked(domain.OrderStatusExpired, "time_in_force_expired")
}

// Cancel transitions to CANCELED; a cancel that resolves "order not
// found" at the exchange is treated by the caller as success and should
// also route here (idempotent).
func (f *FSM) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == domain.OrderStatusCanceled {
		return nil
	}
	return f.transitionLocked(domain.OrderStatusCanceled, "canceled")
}

// Snapshot is an atomic read-only copy for cross-thread observers
// (telemetry/dashboards).
type Snapshot struct {
	Symbol        string
	Side          domain.Side
	ClientOrderID string
	OrderID       string
	Status        domain.OrderStatus
	TotalQty      decimal.Decimal
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	TotalFees     decimal.Decimal
	FailureReason string
	CompletedTS   *time.Time
	History       []Transition
}

func (f *FSM) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Symbol:        f.Symbol,
		Side:          f.Side,
		ClientOrderID: f.ClientOrderID,
		OrderID:       f.OrderID,
		Status:        f.status,
		TotalQty:      f.TotalQty,
		FilledQty:     f.filledQty,
		AvgFillPrice:  f.avgFillPrice,
		TotalFees:     f.totalFees,
		FailureReason: f.failureReason,
		CompletedTS:   f.completedTSPtrLocked(),
		History:       append([]Transition{}, f.history...),
	}
}

func (f *FSM) completedTSPtrLocked() *time.Time {
	if f.completedTS.IsZero() {
		return nil
	}
	ts := f.completedTS
	return &ts
}

// CompletedTS returns the terminal-transition timestamp, or nil if the
// order is still live.
func (f *FSM) CompletedTS() *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedTSPtrLocked()
}

// History returns a copy of every recorded transition, oldest first.
func (f *FSM) History() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition{}, f.history...)
}

// fsmWire is the on-wire shape used by MarshalJSON/UnmarshalJSON: it
// exposes the unexported fields Snapshot already copies out, so
// serializing and restoring an FSM round-trips state, history, and fill
// metrics exactly.
type fsmWire struct {
	Symbol         string              `json:"symbol"`
	Side           domain.Side         `json:"side"`
	ClientOrderID  string              `json:"client_order_id"`
	OrderID        string              `json:"order_id"`
	TotalQty       decimal.Decimal     `json:"total_qty"`
	Price          decimal.Decimal     `json:"price"`
	TIF            domain.TimeInForce  `json:"tif"`
	AutoTransition bool                `json:"auto_transition"`
	FillTolerance  float64             `json:"fill_tolerance"`
	Status         domain.OrderStatus  `json:"status"`
	FilledQty      decimal.Decimal     `json:"filled_qty"`
	AvgFillPrice   decimal.Decimal     `json:"avg_fill_price"`
	TotalFees      decimal.Decimal     `json:"total_fees"`
	FirstFillTS    time.Time           `json:"first_fill_ts"`
	FailureReason  string              `json:"failure_reason"`
	CompletedTS    *time.Time          `json:"completed_ts,omitempty"`
	History        []Transition        `json:"history"`
}

// MarshalJSON serializes the full FSM state, including transition
// history and fill metrics, for persistence across process restarts.
func (f *FSM) MarshalJSON() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.Marshal(fsmWire{
		Symbol:         f.Symbol,
		Side:           f.Side,
		ClientOrderID:  f.ClientOrderID,
		OrderID:        f.OrderID,
		TotalQty:       f.TotalQty,
		Price:          f.Price,
		TIF:            f.TIF,
		AutoTransition: f.AutoTransition,
		FillTolerance:  f.FillTolerance,
		Status:         f.status,
		FilledQty:      f.filledQty,
		AvgFillPrice:   f.avgFillPrice,
		TotalFees:      f.totalFees,
		FirstFillTS:    f.firstFillTS,
		FailureReason:  f.failureReason,
		CompletedTS:    f.completedTSPtrLocked(),
		History:        f.history,
	})
}

// UnmarshalJSON restores a previously-serialized FSM in place.
func (f *FSM) UnmarshalJSON(data []byte) error {
	var w fsmWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Symbol = w.Symbol
	f.Side = w.Side
	f.ClientOrderID = w.ClientOrderID
	f.OrderID = w.OrderID
	f.TotalQty = w.TotalQty
	f.Price = w.Price
	f.TIF = w.TIF
	f.AutoTransition = w.AutoTransition
	f.FillTolerance = w.FillTolerance
	f.status = w.Status
	f.filledQty = w.FilledQty
	f.avgFillPrice = w.AvgFillPrice
	f.totalFees = w.TotalFees
	f.firstFillTS = w.FirstFillTS
	f.failureReason = w.FailureReason
	if w.CompletedTS != nil {
		f.completedTS = *w.CompletedTS
	}
	f.history = w.History
	return nil
}
