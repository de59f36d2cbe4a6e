package exit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

func TestEvaluate_HardSLBeatsEverythingElse(t *testing.T) {
	pos := &domain.Position{
		EntryPrice:       decimal.NewFromInt(100),
		StopLossActive:   true,
		StopLossPrice:    decimal.NewFromInt(95),
		TakeProfitActive: true,
		TakeProfitPrice:  decimal.NewFromInt(90), // would also fire, but SL outranks it
	}
	eval := Evaluate(pos, decimal.NewFromInt(94), time.Now(), decimal.Zero, decimal.Zero)
	assert.True(t, eval.Triggered)
	assert.Equal(t, RuleHardSL, eval.Rule)
}

func TestEvaluate_HardTPFiresWithoutSL(t *testing.T) {
	pos := &domain.Position{
		EntryPrice:       decimal.NewFromInt(100),
		TakeProfitActive: true,
		TakeProfitPrice:  decimal.NewFromInt(110),
	}
	eval := Evaluate(pos, decimal.NewFromInt(111), time.Now(), decimal.Zero, decimal.Zero)
	assert.True(t, eval.Triggered)
	assert.Equal(t, RuleHardTP, eval.Rule)
}

func TestEvaluate_TrailingStopActivatesAndTriggers(t *testing.T) {
	pos := &domain.Position{
		EntryPrice:     decimal.NewFromInt(100),
		EnableTrailing: true,
	}
	activation := decimal.NewFromInt(5)  // 5% above entry activates trailing
	distance := decimal.NewFromInt(2)    // 2% pullback from peak triggers

	// Below activation: no peak tracked yet, no trigger.
	eval := Evaluate(pos, decimal.NewFromInt(103), time.Now(), activation, distance)
	assert.False(t, eval.Triggered)

	// Crosses activation and sets a new peak at 106.
	eval = Evaluate(pos, decimal.NewFromInt(106), time.Now(), activation, distance)
	assert.False(t, eval.Triggered)
	assert.True(t, pos.PeakPriceSinceEntry.Equal(decimal.NewFromInt(106)))

	// Pulls back more than 2% off the 106 peak (trigger = 103.88).
	eval = Evaluate(pos, decimal.NewFromInt(103), time.Now(), activation, distance)
	assert.True(t, eval.Triggered)
	assert.Equal(t, RuleTrailing, eval.Rule)
}

func TestEvaluate_TimeExitAfterMaxHold(t *testing.T) {
	now := time.Now()
	pos := &domain.Position{
		EntryPrice:     decimal.NewFromInt(100),
		EntryTimeS:     now.Add(-61 * time.Minute).Unix(),
		MaxHoldMinutes: 60,
	}
	eval := Evaluate(pos, decimal.NewFromInt(100), now, decimal.Zero, decimal.Zero)
	assert.True(t, eval.Triggered)
	assert.Equal(t, RuleTime, eval.Rule)
}

func TestEvaluate_NoRuleFires(t *testing.T) {
	pos := &domain.Position{EntryPrice: decimal.NewFromInt(100)}
	eval := Evaluate(pos, decimal.NewFromInt(100), time.Now(), decimal.Zero, decimal.Zero)
	assert.False(t, eval.Triggered)
}

func TestQueue_DedupesWithinTTL(t *testing.T) {
	q := NewQueue(10, 2*time.Second)
	now := time.Now()
	sig := Signal{Symbol: "BTCUSDT", Reason: RuleHardSL}

	assert.True(t, q.Push(sig, now))
	assert.False(t, q.Push(sig, now.Add(time.Second)))
	assert.True(t, q.Push(sig, now.Add(3*time.Second)))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_RespectsCapacity(t *testing.T) {
	q := NewQueue(1, 0)
	now := time.Now()
	assert.True(t, q.Push(Signal{Symbol: "AAA"}, now))
	assert.False(t, q.Push(Signal{Symbol: "BBB"}, now))
}

func TestQueue_DrainIsFIFO(t *testing.T) {
	q := NewQueue(10, 0)
	now := time.Now()
	q.Push(Signal{Symbol: "AAA"}, now)
	q.Push(Signal{Symbol: "BBB"}, now.Add(time.Millisecond))

	drained := q.Drain(1)
	assert.Len(t, drained, 1)
	assert.Equal(t, "AAA", drained[0].Symbol)
	assert.Equal(t, 1, q.Len())
}
