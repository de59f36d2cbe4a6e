// Package exit implements the exit-rule evaluator, the exit-signal queue,
// the exit placement ladder, and restore-on-missing protection recovery.
package exit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// Rule identifies which exit condition fired.
type Rule string

const (
	RuleHardSL   Rule = "HARD_SL"
	RuleHardTP   Rule = "HARD_TP"
	RuleTrailing Rule = "TRAILING"
	RuleTime     Rule = "TIME"
)

// rulePriority orders rules from highest (0) to lowest priority, matching
// the rule-priority table.
var rulePriority = map[Rule]int{
	RuleHardSL:   0,
	RuleHardTP:   1,
	RuleTrailing: 2,
	RuleTime:     3,
}

// Evaluation is the highest-priority triggered rule, if any.
type Evaluation struct {
	Triggered bool
	Rule      Rule
}

// Evaluate checks a position against its exit rules in priority order and
// returns the first (highest-priority) one that fires. maxHoldMinutes is
// taken from pos.MaxHoldMinutes; trailingActivationPct/distancePct come
// from the engine's trigger config since they are session-wide, not
// per-position.
func Evaluate(pos *domain.Position, currentPrice decimal.Decimal, now time.Time, trailingActivationPct, trailingDistancePct decimal.Decimal) Evaluation {
	if pos.StopLossActive && currentPrice.LessThanOrEqual(pos.StopLossPrice) {
		return Evaluation{Triggered: true, Rule: RuleHardSL}
	}
	if pos.TakeProfitActive && currentPrice.GreaterThanOrEqual(pos.TakeProfitPrice) {
		return Evaluation{Triggered: true, Rule: RuleHardTP}
	}
	if pos.EnableTrailing {
		if updateTrailing(pos, currentPrice, trailingActivationPct, trailingDistancePct) {
			return Evaluation{Triggered: true, Rule: RuleTrailing}
		}
	}
	if pos.MaxHoldMinutes > 0 {
		elapsed := now.Unix() - pos.EntryTimeS
		if elapsed >= int64(pos.MaxHoldMinutes)*60 {
			return Evaluation{Triggered: true, Rule: RuleTime}
		}
	}
	return Evaluation{Triggered: false}
}

// updateTrailing advances pos.PeakPriceSinceEntry on new highs (once past
// the activation threshold) and reports whether the trailing-stop trigger
// price has been breached.
func updateTrailing(pos *domain.Position, currentPrice decimal.Decimal, activationPct, distancePct decimal.Decimal) bool {
	activationPrice := pos.EntryPrice.Mul(decimal.NewFromInt(1).Add(activationPct.Div(decimal.NewFromInt(100))))
	if currentPrice.LessThan(activationPrice) && pos.PeakPriceSinceEntry.IsZero() {
		return false
	}
	if currentPrice.GreaterThan(pos.PeakPriceSinceEntry) {
		pos.PeakPriceSinceEntry = currentPrice
	}
	if pos.PeakPriceSinceEntry.IsZero() {
		return false
	}
	trigger := pos.PeakPriceSinceEntry.Mul(decimal.NewFromInt(1).Sub(distancePct.Div(decimal.NewFromInt(100))))
	pos.TrailingTrigger = trigger
	return currentPrice.LessThanOrEqual(trigger)
}
