package marketdata

import (
	"math"

	"github.com/shopspring/decimal"
)

// This file implements guard.Stats against the provider's cached ticker
// and OHLCV history, so internal/guard depends only on the narrow
// interface and not on the provider's concrete cache internals.

// SpreadBps returns the cached ticker's spread in basis points.
func (p *Provider) SpreadBps(symbol string) (decimal.Decimal, bool) {
	t, ok := p.cachedTicker(symbol)
	if !ok || !t.Valid() {
		return decimal.Zero, false
	}
	return t.SpreadBps(), true
}

// SMA returns the simple moving average of 1m close prices over window
// bars.
func (p *Provider) SMA(symbol string, window int) (decimal.Decimal, bool) {
	bars := p.History(symbol, "1m", window)
	if len(bars) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars)))), true
}

// CurrentBarVolume returns the most recent 1m bar's volume.
func (p *Provider) CurrentBarVolume(symbol string) (decimal.Decimal, bool) {
	bars := p.History(symbol, "1m", 1)
	if len(bars) == 0 {
		return decimal.Zero, false
	}
	return bars[len(bars)-1].Volume, true
}

// RollingMeanVolume returns the mean volume over the last window 1m bars.
func (p *Provider) RollingMeanVolume(symbol string, window int) (decimal.Decimal, bool) {
	bars := p.History(symbol, "1m", window)
	if len(bars) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars)))), true
}

// ReturnSigmaBps1m returns the standard deviation (in bps) of 1-minute
// close-to-close returns over the last window bars.
func (p *Provider) ReturnSigmaBps1m(symbol string, window int) (decimal.Decimal, bool) {
	bars := p.History(symbol, "1m", window+1)
	if len(bars) < 2 {
		return decimal.Zero, false
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev.IsZero() {
			continue
		}
		r, _ := cur.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	if len(returns) == 0 {
		return decimal.Zero, false
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	sigma := math.Sqrt(variance) * 10_000
	return decimal.NewFromFloat(sigma), true
}

// ReturnPct returns the percent change of the symbol's close price between
// now and `minutes` ago, using the 1m history.
func (p *Provider) ReturnPct(symbol string, minutes int) (decimal.Decimal, bool) {
	bars := p.History(symbol, "1m", minutes+1)
	if len(bars) < 2 {
		return decimal.Zero, false
	}
	first := bars[0].Close
	last := bars[len(bars)-1].Close
	if first.IsZero() {
		return decimal.Zero, false
	}
	return last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)), true
}

// FallingFraction returns the fraction of the registered universe whose
// `minutes`-return is negative. The threshold parameter is accepted for
// interface symmetry with guard.Config's own comparison but unused here;
// the guard performs the comparison against its own configured threshold.
func (p *Provider) FallingFraction(minutes int, _ decimal.Decimal) (decimal.Decimal, bool) {
	p.mu.RLock()
	universe := append([]string(nil), p.universe...)
	p.mu.RUnlock()
	if len(universe) == 0 {
		return decimal.Zero, false
	}
	falling := 0
	counted := 0
	for _, symbol := range universe {
		ret, ok := p.ReturnPct(symbol, minutes)
		if !ok {
			continue
		}
		counted++
		if ret.IsNegative() {
			falling++
		}
	}
	if counted == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(falling)).Div(decimal.NewFromInt(int64(counted))), true
}
