package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// CalculateNetProfit computes profit after trading fees
func CalculateNetProfit(buyPrice, sellPrice, buyFeeRate, sellFeeRate decimal.Decimal) decimal.Decimal {
	grossProfit := sellPrice.Sub(buyPrice)
	buyFee := buyPrice.Mul(buyFeeRate)
	sellFee := sellPrice.Mul(sellFeeRate)
	return grossProfit.Sub(buyFee).Sub(sellFee)
}

// FloorToStep rounds a quantity down to the nearest multiple of step (used
// for SELL quantity rounding, which must never round up past what's held).
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	units := qty.Div(step).Floor()
	return units.Mul(step)
}

// CeilToStepWithMinNotional rounds a quantity up to the nearest multiple of
// step, then up again if necessary so that qty*price clears minNotional
// (used for BUY quantity rounding).
func CeilToStepWithMinNotional(qty, step, price, minNotional decimal.Decimal) decimal.Decimal {
	rounded := qty
	if !step.IsZero() {
		units := qty.Div(step).Ceil()
		rounded = units.Mul(step)
	}
	if price.IsPositive() && minNotional.IsPositive() {
		for rounded.Mul(price).LessThan(minNotional) {
			if step.IsZero() {
				break
			}
			rounded = rounded.Add(step)
		}
	}
	return rounded
}

// RoundToTick rounds a price to the nearest multiple of tick.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	units := price.Div(tick).Round(0)
	return units.Mul(tick)
}
