// Package trigger implements the drop-trigger signal pipeline: the rolling
// peak window, the hysteresis/debounce drop-trigger gate, and the
// consecutive-tick stabilizer.
package trigger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Reason identifies why a drop-trigger evaluation did not fire.
type Reason string

const (
	ReasonTriggered      Reason = "triggered"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonNeedHysteresis Reason = "need_hysteresis"
	ReasonDebounce       Reason = "debounce"
)

// Result is the outcome of one DropTrigger.Evaluate call.
type Result struct {
	Triggered bool
	Reason    Reason
	DropBps   decimal.Decimal
	Anchor    decimal.Decimal
}

// Config carries the threshold/hysteresis/debounce parameters.
type Config struct {
	ThresholdBps  decimal.Decimal
	HysteresisBps decimal.Decimal
	Debounce      time.Duration
}

// DropTrigger evaluates price-vs-anchor drops per symbol with a hysteresis
// gate and a debounce cooldown on repeated firing.
type DropTrigger struct {
	cfg Config

	mu         sync.Mutex
	lastFireTS map[string]time.Time
}

func NewDropTrigger(cfg Config) *DropTrigger {
	return &DropTrigger{cfg: cfg, lastFireTS: make(map[string]time.Time)}
}

// Evaluate computes drop_bp = (1 - price/anchor) * 10_000 and applies the
// threshold, hysteresis, and debounce gates in order.
func (d *DropTrigger) Evaluate(symbol string, price, anchor decimal.Decimal, now time.Time) Result {
	if anchor.IsZero() {
		return Result{Triggered: false, Reason: ReasonBelowThreshold}
	}

	dropBps := decimal.NewFromInt(1).Sub(price.Div(anchor)).Mul(decimal.NewFromInt(10_000))

	if dropBps.LessThan(d.cfg.ThresholdBps) {
		return Result{Triggered: false, Reason: ReasonBelowThreshold, DropBps: dropBps, Anchor: anchor}
	}

	if dropBps.LessThan(d.cfg.ThresholdBps.Add(d.cfg.HysteresisBps)) {
		return Result{Triggered: false, Reason: ReasonNeedHysteresis, DropBps: dropBps, Anchor: anchor}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastFireTS[symbol]; ok && now.Sub(last) < d.cfg.Debounce {
		return Result{Triggered: false, Reason: ReasonDebounce, DropBps: dropBps, Anchor: anchor}
	}
	d.lastFireTS[symbol] = now

	return Result{Triggered: true, Reason: ReasonTriggered, DropBps: dropBps, Anchor: anchor}
}
