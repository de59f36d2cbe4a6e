// Package guard implements the composable market-guard stack: spread,
// SMA, volume, volatility, BTC-filter, and falling-coins checks that gate
// buy evaluation. Grounded on the now-superseded internal/risk/monitor.go's
// ATR/volume-spike/worker-pool shape (adapted here to plain guard structs).
package guard

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/concurrency"
)

// Stats is the read-only market-state surface guards need. Implemented by
// internal/marketdata.Provider.
type Stats interface {
	SpreadBps(symbol string) (decimal.Decimal, bool)
	SMA(symbol string, window int) (decimal.Decimal, bool)
	CurrentBarVolume(symbol string) (decimal.Decimal, bool)
	RollingMeanVolume(symbol string, window int) (decimal.Decimal, bool)
	ReturnSigmaBps1m(symbol string, window int) (decimal.Decimal, bool)
	ReturnPct(symbol string, minutes int) (decimal.Decimal, bool)
	FallingFraction(minutes int, threshold decimal.Decimal) (decimal.Decimal, bool)
}

// Guard is one independently-togglable market condition check.
type Guard interface {
	Name() string
	Check(symbol string, currentPrice decimal.Decimal) (pass bool, reason string)
}

// Config enables and thresholds each guard.
type Config struct {
	UseSpread     bool
	MaxSpreadBps  decimal.Decimal
	SpreadOverride map[string]decimal.Decimal

	UseSMA       bool
	SMAWindow    int
	SMAMinRatio  decimal.Decimal

	UseVolume    bool
	VolumeWindow int
	VolumeFactor decimal.Decimal

	UseVolatility   bool
	VolWindow       int
	MinVolSigmaBps  decimal.Decimal

	UseBTCFilter   bool
	BTCThreshold   decimal.Decimal // price_now/price_60m_ago must be >= this

	UseFallingCoins   bool
	FallingThreshold  decimal.Decimal
}

// Composite runs every enabled guard in a fixed, deterministic order and
// tallies failures per guard name for periodic summary logs.
type Composite struct {
	cfg    Config
	stats  Stats
	guards []Guard
	pool   *concurrency.WorkerPool

	mu      sync.Mutex
	failCount map[string]int
}

func NewComposite(cfg Config, stats Stats, log core.ILogger) *Composite {
	c := &Composite{
		cfg:       cfg,
		stats:     stats,
		failCount: make(map[string]int),
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "guard_eval",
			MaxWorkers:  8,
			MaxCapacity: 64,
		}, log),
	}
	c.guards = c.buildGuards()
	return c
}

// Stop shuts down the guard-evaluation worker pool, waiting for any
// in-flight evaluation to finish.
func (c *Composite) Stop() error {
	c.pool.Stop()
	return nil
}

func (c *Composite) buildGuards() []Guard {
	var guards []Guard
	if c.cfg.UseSpread {
		guards = append(guards, &spreadGuard{cfg: c.cfg, stats: c.stats})
	}
	if c.cfg.UseSMA {
		guards = append(guards, &smaGuard{cfg: c.cfg, stats: c.stats})
	}
	if c.cfg.UseVolume {
		guards = append(guards, &volumeGuard{cfg: c.cfg, stats: c.stats})
	}
	if c.cfg.UseVolatility {
		guards = append(guards, &volatilityGuard{cfg: c.cfg, stats: c.stats})
	}
	if c.cfg.UseBTCFilter {
		guards = append(guards, &btcFilterGuard{cfg: c.cfg, stats: c.stats})
	}
	if c.cfg.UseFallingCoins {
		guards = append(guards, &fallingCoinsGuard{cfg: c.cfg, stats: c.stats})
	}
	return guards
}

// Evaluate runs every enabled guard in order; disabled guards are
// equivalent to short-circuiting to pass, so they are simply absent from
// c.guards. Returns (allPass, failedGuardNames).
func (c *Composite) Evaluate(symbol string, currentPrice decimal.Decimal) (bool, []string) {
	var failed []string
	for _, g := range c.guards {
		if pass, _ := g.Check(symbol, currentPrice); !pass {
			failed = append(failed, g.Name())
		}
	}
	if len(failed) > 0 {
		c.mu.Lock()
		for _, name := range failed {
			c.failCount[name]++
		}
		c.mu.Unlock()
	}
	return len(failed) == 0, failed
}

// Result is one symbol's composite guard verdict, as returned by
// EvaluateAll.
type Result struct {
	Symbol string
	Pass   bool
	Failed []string
}

// EvaluateAll runs Evaluate for every (symbol, price) pair concurrently
// across the worker pool: each guard only reads Stats and the shared
// failCount tally is mutex-guarded, so fanning evaluation out across the
// watchlist is safe and lets a slow SMA/volatility lookup for one symbol
// overlap with the rest instead of serializing the whole cycle.
func (c *Composite) EvaluateAll(symbols []string, prices map[string]decimal.Decimal) map[string]Result {
	results := make(map[string]Result, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			pass, failed := c.Evaluate(symbol, prices[symbol])
			mu.Lock()
			results[symbol] = Result{Symbol: symbol, Pass: pass, Failed: failed}
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			pass, failed := c.Evaluate(symbol, prices[symbol])
			mu.Lock()
			results[symbol] = Result{Symbol: symbol, Pass: pass, Failed: failed}
			mu.Unlock()
		}
	}
	wg.Wait()
	return results
}

// Summary returns a snapshot of per-guard failure counts since the last
// call, keyed by guard name, and resets the counters (used for the periodic
// GUARD_BLOCK_SUMMARY event).
func (c *Composite) Summary() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.failCount))
	for k, v := range c.failCount {
		out[k] = v
		delete(c.failCount, k)
	}
	return out
}

// Names returns the enabled guard names sorted alphabetically, for logging.
func (c *Composite) Names() []string {
	names := make([]string, 0, len(c.guards))
	for _, g := range c.guards {
		names = append(names, g.Name())
	}
	sort.Strings(names)
	return names
}

type spreadGuard struct {
	cfg   Config
	stats Stats
}

func (g *spreadGuard) Name() string { return "spread" }

func (g *spreadGuard) Check(symbol string, _ decimal.Decimal) (bool, string) {
	spreadBps, ok := g.stats.SpreadBps(symbol)
	if !ok {
		return false, "no_ticker"
	}
	max := g.cfg.MaxSpreadBps
	if override, ok := g.cfg.SpreadOverride[symbol]; ok {
		max = override
	}
	if spreadBps.GreaterThan(max) {
		return false, "spread_too_wide"
	}
	return true, ""
}

type smaGuard struct {
	cfg   Config
	stats Stats
}

func (g *smaGuard) Name() string { return "sma" }

func (g *smaGuard) Check(symbol string, currentPrice decimal.Decimal) (bool, string) {
	sma, ok := g.stats.SMA(symbol, g.cfg.SMAWindow)
	if !ok || sma.IsZero() {
		return false, "no_sma"
	}
	minRatio := g.cfg.SMAMinRatio
	if minRatio.IsZero() {
		minRatio = decimal.NewFromInt(1)
	}
	if currentPrice.LessThan(sma.Mul(minRatio)) {
		return false, "below_sma"
	}
	return true, ""
}

type volumeGuard struct {
	cfg   Config
	stats Stats
}

func (g *volumeGuard) Name() string { return "volume" }

func (g *volumeGuard) Check(symbol string, _ decimal.Decimal) (bool, string) {
	current, ok := g.stats.CurrentBarVolume(symbol)
	if !ok {
		return false, "no_volume"
	}
	mean, ok := g.stats.RollingMeanVolume(symbol, g.cfg.VolumeWindow)
	if !ok || mean.IsZero() {
		return false, "no_volume_mean"
	}
	factor := g.cfg.VolumeFactor
	if factor.IsZero() {
		factor = decimal.NewFromFloat(0.5)
	}
	if current.LessThan(mean.Mul(factor)) {
		return false, "volume_too_low"
	}
	return true, ""
}

type volatilityGuard struct {
	cfg   Config
	stats Stats
}

func (g *volatilityGuard) Name() string { return "volatility" }

func (g *volatilityGuard) Check(symbol string, _ decimal.Decimal) (bool, string) {
	sigma, ok := g.stats.ReturnSigmaBps1m(symbol, g.cfg.VolWindow)
	if !ok {
		return false, "no_volatility_data"
	}
	if sigma.LessThan(g.cfg.MinVolSigmaBps) {
		return false, "market_too_flat"
	}
	return true, ""
}

type btcFilterGuard struct {
	cfg   Config
	stats Stats
}

func (g *btcFilterGuard) Name() string { return "btc_filter" }

func (g *btcFilterGuard) Check(_ string, _ decimal.Decimal) (bool, string) {
	changePct, ok := g.stats.ReturnPct("BTC/USDT", 60)
	if !ok {
		return false, "no_btc_data"
	}
	ratio := decimal.NewFromInt(1).Add(changePct.Div(decimal.NewFromInt(100)))
	if ratio.LessThan(g.cfg.BTCThreshold) {
		return false, "btc_falling"
	}
	return true, ""
}

type fallingCoinsGuard struct {
	cfg   Config
	stats Stats
}

func (g *fallingCoinsGuard) Name() string { return "falling_coins" }

func (g *fallingCoinsGuard) Check(_ string, _ decimal.Decimal) (bool, string) {
	fraction, ok := g.stats.FallingFraction(60, decimal.Zero)
	if !ok {
		return false, "no_universe_data"
	}
	if fraction.GreaterThan(g.cfg.FallingThreshold) {
		return false, "too_many_falling"
	}
	return true, ""
}
