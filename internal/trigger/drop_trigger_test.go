package trigger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestTrigger() *DropTrigger {
	return NewDropTrigger(Config{
		ThresholdBps:  decimal.NewFromInt(100), // 1%
		HysteresisBps: decimal.NewFromInt(20),  // 0.2%
		Debounce:      time.Second,
	})
}

func TestDropTrigger_BelowThreshold(t *testing.T) {
	dt := newTestTrigger()
	now := time.Now()
	anchor := decimal.NewFromInt(100)
	price := decimal.NewFromFloat(99.5) // 0.5% drop, below 1%

	result := dt.Evaluate("BTCUSDT", price, anchor, now)
	assert.False(t, result.Triggered)
	assert.Equal(t, ReasonBelowThreshold, result.Reason)
}

func TestDropTrigger_NeedsHysteresis(t *testing.T) {
	dt := newTestTrigger()
	now := time.Now()
	anchor := decimal.NewFromInt(100)
	price := decimal.NewFromFloat(98.9) // 1.1% drop: past threshold, inside hysteresis band

	result := dt.Evaluate("BTCUSDT", price, anchor, now)
	assert.False(t, result.Triggered)
	assert.Equal(t, ReasonNeedHysteresis, result.Reason)
}

func TestDropTrigger_FiresPastHysteresis(t *testing.T) {
	dt := newTestTrigger()
	now := time.Now()
	anchor := decimal.NewFromInt(100)
	price := decimal.NewFromFloat(98.5) // 1.5% drop: past threshold + hysteresis

	result := dt.Evaluate("BTCUSDT", price, anchor, now)
	assert.True(t, result.Triggered)
	assert.Equal(t, ReasonTriggered, result.Reason)
}

func TestDropTrigger_Debounce(t *testing.T) {
	dt := newTestTrigger()
	now := time.Now()
	anchor := decimal.NewFromInt(100)
	price := decimal.NewFromFloat(98.5)

	first := dt.Evaluate("BTCUSDT", price, anchor, now)
	assert.True(t, first.Triggered)

	second := dt.Evaluate("BTCUSDT", price, anchor, now.Add(500*time.Millisecond))
	assert.False(t, second.Triggered)
	assert.Equal(t, ReasonDebounce, second.Reason)

	third := dt.Evaluate("BTCUSDT", price, anchor, now.Add(2*time.Second))
	assert.True(t, third.Triggered)
}

func TestDropTrigger_ZeroAnchor(t *testing.T) {
	dt := newTestTrigger()
	result := dt.Evaluate("BTCUSDT", decimal.NewFromInt(100), decimal.Zero, time.Now())
	assert.False(t, result.Triggered)
}

func TestRollingWindow_EvictsAndTracksMax(t *testing.T) {
	w := NewRollingWindow(time.Minute)
	base := time.Now()

	w.Push(base, decimal.NewFromInt(100))
	w.Push(base.Add(10*time.Second), decimal.NewFromInt(110))
	w.Push(base.Add(20*time.Second), decimal.NewFromInt(90))

	assert.True(t, w.Max().Equal(decimal.NewFromInt(110)))
	assert.Equal(t, 3, w.Len())

	// Evict everything older than the lookback window; the max (110) goes
	// with it, forcing a recompute over what remains.
	w.Push(base.Add(90*time.Second), decimal.NewFromInt(95))
	assert.True(t, w.Max().Equal(decimal.NewFromInt(95)))
	assert.Equal(t, 1, w.Len())
}

func TestStabilizer_RequiresConsecutiveConfirmations(t *testing.T) {
	s := NewStabilizer(3)

	assert.False(t, s.Step("BTCUSDT", true))
	assert.False(t, s.Step("BTCUSDT", true))
	assert.True(t, s.Step("BTCUSDT", true))

	s.Reset("BTCUSDT")
	assert.False(t, s.Step("BTCUSDT", true))

	// A false resets the streak.
	assert.False(t, s.Step("BTCUSDT", false))
}
