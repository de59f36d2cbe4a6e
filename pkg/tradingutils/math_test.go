package tradingutils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundPrice(t *testing.T) {
	assert.True(t, RoundPrice(decimal.NewFromFloat(1.2349), 2).Equal(decimal.NewFromFloat(1.23)))
}

func TestRoundQuantity(t *testing.T) {
	assert.True(t, RoundQuantity(decimal.NewFromFloat(0.12369), 3).Equal(decimal.NewFromFloat(0.124)))
}

func TestCalculateNetProfit(t *testing.T) {
	profit := CalculateNetProfit(decimal.NewFromInt(100), decimal.NewFromInt(110), decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.001))
	// gross 10, buyFee 0.1, sellFee 0.11
	assert.True(t, profit.Equal(decimal.NewFromFloat(9.79)))
}

func TestFloorToStep(t *testing.T) {
	assert.True(t, FloorToStep(decimal.NewFromFloat(1.2349), decimal.NewFromFloat(0.01)).Equal(decimal.NewFromFloat(1.23)))
}

func TestFloorToStep_ZeroStepIsNoOp(t *testing.T) {
	qty := decimal.NewFromFloat(1.2349)
	assert.True(t, FloorToStep(qty, decimal.Zero).Equal(qty))
}

func TestCeilToStepWithMinNotional_RoundsUpToStep(t *testing.T) {
	qty := CeilToStepWithMinNotional(decimal.NewFromFloat(1.001), decimal.NewFromFloat(0.01), decimal.Zero, decimal.Zero)
	assert.True(t, qty.Equal(decimal.NewFromFloat(1.01)))
}

func TestCeilToStepWithMinNotional_EscalatesUntilMinNotionalCleared(t *testing.T) {
	qty := CeilToStepWithMinNotional(decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.01), decimal.NewFromInt(100), decimal.NewFromInt(5))
	assert.True(t, qty.Mul(decimal.NewFromInt(100)).GreaterThanOrEqual(decimal.NewFromInt(5)))
}

func TestRoundToTick(t *testing.T) {
	assert.True(t, RoundToTick(decimal.NewFromFloat(100.017), decimal.NewFromFloat(0.01)).Equal(decimal.NewFromFloat(100.02)))
}

func TestRoundToTick_ZeroTickIsNoOp(t *testing.T) {
	price := decimal.NewFromFloat(100.017)
	assert.True(t, RoundToTick(price, decimal.Zero).Equal(price))
}
