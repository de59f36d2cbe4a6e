// Package marketdata maintains the ticker cache and OHLCV history the rest
// of the engine reads from, with TTL/LRU eviction, stale-tolerant
// fallback, and a per-symbol circuit breaker for degraded venues.
// Grounded on the now-superseded internal/risk/monitor.go's per-symbol
// stats-map-with-mutex shape, generalized from ATR/volume-spike detection
// to the full provider contract.
package marketdata

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/concurrency"
)

// Config bounds cache sizing, TTLs, and the degradation circuit breaker.
type Config struct {
	TickerTTL           time.Duration
	MaxCacheSize        int
	StaleTolerance      time.Duration
	SynthesizedSpreadPct decimal.Decimal // assumed spread when synthesizing from OHLCV close
	FailureThreshold    int
	CircuitTimeout      time.Duration
	HistoryCapacity     int // bars retained per (symbol, timeframe)
}

func DefaultConfig() Config {
	return Config{
		TickerTTL:            5 * time.Second,
		MaxCacheSize:         1000,
		StaleTolerance:       30 * time.Second,
		SynthesizedSpreadPct: decimal.NewFromFloat(0.001),
		FailureThreshold:     5,
		CircuitTimeout:       60 * time.Second,
		HistoryCapacity:      500,
	}
}

type tickerEntry struct {
	ticker    domain.Ticker
	expiresAt time.Time
	fetchedAt time.Time
	elem      *list.Element // LRU position
}

type symbolHealth struct {
	consecutiveFailures int
	circuitOpenUntil    time.Time
}

type historyKey struct {
	symbol    string
	timeframe string
}

// Provider is the market-data cache + degradation layer. Safe for
// concurrent use; the engine thread is the only writer of fresh data but
// guard/telemetry readers may call the Stats methods concurrently.
type Provider struct {
	cfg    Config
	client exchange.Client
	log    core.ILogger

	mu       sync.RWMutex
	tickers  map[string]*tickerEntry
	lru      *list.List // front = most recently used
	health   map[string]*symbolHealth
	history  map[historyKey][]domain.OHLCVBar
	universe []string
	pool     *concurrency.WorkerPool
}

func New(cfg Config, client exchange.Client, log core.ILogger) *Provider {
	return &Provider{
		cfg:     cfg,
		client:  client,
		log:     log.WithField("component", "marketdata"),
		tickers: make(map[string]*tickerEntry),
		lru:     list.New(),
		health:  make(map[string]*symbolHealth),
		history: make(map[historyKey][]domain.OHLCVBar),
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "marketdata_refresh",
			MaxWorkers:  8,
			MaxCapacity: 64,
		}, log),
	}
}

// Stop shuts down the refresh worker pool, waiting for any in-flight
// fetch to finish.
func (p *Provider) Stop() error {
	p.pool.Stop()
	return nil
}

// SetUniverse records the full symbol watchlist used by FallingFraction.
func (p *Provider) SetUniverse(symbols []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.universe = append([]string(nil), symbols...)
}

func (p *Provider) healthLocked(symbol string) *symbolHealth {
	h, ok := p.health[symbol]
	if !ok {
		h = &symbolHealth{}
		p.health[symbol] = h
	}
	return h
}

func (p *Provider) circuitOpen(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.health[symbol]
	return ok && time.Now().Before(h.circuitOpenUntil)
}

func (p *Provider) recordFailure(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.healthLocked(symbol)
	h.consecutiveFailures++
	if h.consecutiveFailures >= p.cfg.FailureThreshold {
		h.circuitOpenUntil = time.Now().Add(p.cfg.CircuitTimeout)
	}
}

func (p *Provider) recordSuccess(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.healthLocked(symbol)
	h.consecutiveFailures = 0
	h.circuitOpenUntil = time.Time{}
}

// GetTicker returns the cached ticker if fresh (useCache), else fetches via
// the exchange client. On a fetch failure, or when the per-symbol circuit
// is open, it falls back to a stale cache entry within tolerance or
// synthesizes one from the last OHLCV close, marked Degraded.
func (p *Provider) GetTicker(ctx context.Context, symbol string, useCache bool) (domain.Ticker, error) {
	if useCache {
		if t, ok := p.cachedTicker(symbol); ok {
			return t, nil
		}
	}

	if p.circuitOpen(symbol) {
		return p.fallbackTicker(symbol)
	}

	t, err := p.client.FetchTicker(ctx, symbol)
	if err != nil {
		p.recordFailure(symbol)
		if fallback, ok := p.tryFallback(symbol); ok {
			return fallback, nil
		}
		return domain.Ticker{}, err
	}

	p.recordSuccess(symbol)
	p.storeTicker(symbol, t)
	return t, nil
}

// Cached returns the current cached ticker for symbol without triggering a
// fetch, for callers (telemetry, PnL pricing) that only want a best-effort
// read.
func (p *Provider) Cached(symbol string) (domain.Ticker, bool) {
	return p.cachedTicker(symbol)
}

func (p *Provider) cachedTicker(symbol string) (domain.Ticker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.tickers[symbol]
	if !ok || time.Now().After(e.expiresAt) {
		return domain.Ticker{}, false
	}
	p.lru.MoveToFront(e.elem)
	return e.ticker, true
}

func (p *Provider) tryFallback(symbol string) (domain.Ticker, bool) {
	t, err := p.fallbackTicker(symbol)
	if err != nil {
		return domain.Ticker{}, false
	}
	return t, true
}

func (p *Provider) fallbackTicker(symbol string) (domain.Ticker, error) {
	p.mu.RLock()
	e, hasCache := p.tickers[symbol]
	p.mu.RUnlock()
	if hasCache && time.Since(e.fetchedAt) <= p.cfg.StaleTolerance {
		t := e.ticker
		t.Degraded = true
		return t, nil
	}

	bars := p.History(symbol, "1m", 1)
	if len(bars) == 0 {
		return domain.Ticker{}, domainNoDataErr(symbol)
	}
	last := bars[len(bars)-1]
	spread := last.Close.Mul(p.cfg.SynthesizedSpreadPct)
	return domain.Ticker{
		Symbol:      symbol,
		Last:        last.Close,
		Bid:         last.Close.Sub(spread.Div(decimal.NewFromInt(2))),
		Ask:         last.Close.Add(spread.Div(decimal.NewFromInt(2))),
		TimestampMs: last.TimestampMs,
		Degraded:    true,
	}, nil
}

func (p *Provider) storeTicker(symbol string, t domain.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if e, ok := p.tickers[symbol]; ok {
		e.ticker = t
		e.expiresAt = now.Add(p.cfg.TickerTTL)
		e.fetchedAt = now
		p.lru.MoveToFront(e.elem)
		return
	}

	elem := p.lru.PushFront(symbol)
	p.tickers[symbol] = &tickerEntry{ticker: t, expiresAt: now.Add(p.cfg.TickerTTL), fetchedAt: now, elem: elem}

	for len(p.tickers) > p.cfg.MaxCacheSize {
		back := p.lru.Back()
		if back == nil {
			break
		}
		p.lru.Remove(back)
		delete(p.tickers, back.Value.(string))
	}
}

// GetPrice returns last, falling back to ask then bid.
func (p *Provider) GetPrice(ctx context.Context, symbol string, preferCache bool) (decimal.Decimal, error) {
	t, err := p.GetTicker(ctx, symbol, preferCache)
	if err != nil {
		return decimal.Zero, err
	}
	if t.Last.IsPositive() {
		return t.Last, nil
	}
	if t.Ask.IsPositive() {
		return t.Ask, nil
	}
	return t.Bid, nil
}

// FetchOHLCV fetches bars and, when store is true, merges them into the
// retained history, deduplicated and overwritten by timestamp.
func (p *Provider) FetchOHLCV(ctx context.Context, symbol, tf string, limit int, store bool) ([]domain.OHLCVBar, error) {
	bars, err := p.client.FetchOHLCV(ctx, symbol, tf, limit, nil)
	if err != nil {
		return nil, err
	}
	if store {
		p.mergeHistory(symbol, tf, bars)
	}
	return bars, nil
}

func (p *Provider) mergeHistory(symbol, tf string, bars []domain.OHLCVBar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := historyKey{symbol: symbol, timeframe: tf}
	byTS := make(map[int64]domain.OHLCVBar, len(p.history[key])+len(bars))
	for _, b := range p.history[key] {
		byTS[b.TimestampMs] = b
	}
	for _, b := range bars {
		byTS[b.TimestampMs] = b // newer bars overwrite equal-timestamp bars
	}
	merged := make([]domain.OHLCVBar, 0, len(byTS))
	for _, b := range byTS {
		merged = append(merged, b)
	}
	sortBarsByTime(merged)
	if len(merged) > p.cfg.HistoryCapacity {
		merged = merged[len(merged)-p.cfg.HistoryCapacity:]
	}
	p.history[key] = merged
}

func sortBarsByTime(bars []domain.OHLCVBar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j-1].TimestampMs > bars[j].TimestampMs; j-- {
			bars[j-1], bars[j] = bars[j], bars[j-1]
		}
	}
}

// History returns up to limit most-recent stored bars (oldest first).
func (p *Provider) History(symbol, tf string, limit int) []domain.OHLCVBar {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars := p.history[historyKey{symbol: symbol, timeframe: tf}]
	if limit <= 0 || limit >= len(bars) {
		return append([]domain.OHLCVBar(nil), bars...)
	}
	return append([]domain.OHLCVBar(nil), bars[len(bars)-limit:]...)
}

// UpdateMarketData refreshes every symbol's ticker, recording per-symbol
// failures without aborting the batch. Fetches run concurrently across
// the worker pool: GetTicker already serializes its own cache/health
// mutations under p.mu, so fanning the underlying exchange calls out
// across the batch is safe and keeps one slow/stale symbol from
// serializing the whole refresh.
func (p *Provider) UpdateMarketData(ctx context.Context, symbols []string) map[string]bool {
	results := make(map[string]bool, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		fetch := func() {
			defer wg.Done()
			_, err := p.GetTicker(ctx, symbol, false)
			mu.Lock()
			results[symbol] = err == nil
			mu.Unlock()
		}
		if err := p.pool.Submit(fetch); err != nil {
			fetch()
		}
	}
	wg.Wait()
	return results
}

// BackfillHistory bootstraps history for a batch of symbols on one
// timeframe, returning how many bars were retained per symbol.
func (p *Provider) BackfillHistory(ctx context.Context, symbols []string, tf string, minutes int) map[string]int {
	limit := minutes
	out := make(map[string]int, len(symbols))
	for _, symbol := range symbols {
		bars, err := p.FetchOHLCV(ctx, symbol, tf, limit, true)
		if err != nil {
			out[symbol] = 0
			continue
		}
		out[symbol] = len(bars)
	}
	return out
}

// CleanupExpiredCache removes expired ticker entries and returns the count
// removed.
func (p *Provider) CleanupExpiredCache() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	removed := 0
	for symbol, e := range p.tickers {
		if now.After(e.expiresAt.Add(p.cfg.StaleTolerance)) {
			p.lru.Remove(e.elem)
			delete(p.tickers, symbol)
			removed++
		}
	}
	return removed
}

type noDataError struct{ symbol string }

func (e noDataError) Error() string { return "marketdata: no data available for " + e.symbol }

func domainNoDataErr(symbol string) error { return noDataError{symbol: symbol} }
