package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/logging"
)

func newTestProvider(t *testing.T, cfg Config) (*Provider, *exchange.MockClient) {
	t.Helper()
	log, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	client := exchange.NewMockClient()
	return New(cfg, client, log), client
}

func TestProvider_GetTickerCachesAndServesFromCache(t *testing.T) {
	p, client := newTestProvider(t, DefaultConfig())
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101), Last: decimal.NewFromInt(100)})

	t1, err := p.GetTicker(context.Background(), "BTCUSDT", false)
	require.NoError(t, err)
	assert.True(t, t1.Last.Equal(decimal.NewFromInt(100)))

	cached, ok := p.Cached("BTCUSDT")
	assert.True(t, ok)
	assert.True(t, cached.Last.Equal(decimal.NewFromInt(100)))
}

func TestProvider_GetTickerUnknownSymbolErrors(t *testing.T) {
	p, _ := newTestProvider(t, DefaultConfig())
	_, err := p.GetTicker(context.Background(), "NOPE", false)
	assert.Error(t, err)
}

func TestProvider_GetPriceFallsBackThroughLastAskBid(t *testing.T) {
	p, client := newTestProvider(t, DefaultConfig())
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(99), Ask: decimal.NewFromInt(101)})

	price, err := p.GetPrice(context.Background(), "BTCUSDT", false)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(101))) // last is zero, falls back to ask
}

func TestProvider_HistoryMergeDedupesByTimestamp(t *testing.T) {
	cfg := DefaultConfig()
	p, _ := newTestProvider(t, cfg)

	p.mergeHistory("BTCUSDT", "1m", []domain.OHLCVBar{
		{TimestampMs: 1000, Close: decimal.NewFromInt(100)},
		{TimestampMs: 2000, Close: decimal.NewFromInt(101)},
	})
	p.mergeHistory("BTCUSDT", "1m", []domain.OHLCVBar{
		{TimestampMs: 2000, Close: decimal.NewFromInt(105)}, // overwrites
		{TimestampMs: 3000, Close: decimal.NewFromInt(110)},
	})

	bars := p.History("BTCUSDT", "1m", 0)
	require.Len(t, bars, 3)
	assert.True(t, bars[1].Close.Equal(decimal.NewFromInt(105)))
}

func TestProvider_CleanupExpiredCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickerTTL = time.Millisecond
	cfg.StaleTolerance = 0
	p, client := newTestProvider(t, cfg)
	client.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: decimal.NewFromInt(1), Ask: decimal.NewFromInt(1)})

	_, err := p.GetTicker(context.Background(), "BTCUSDT", false)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	removed := p.CleanupExpiredCache()
	assert.Equal(t, 1, removed)
}

func TestProvider_Stats_SMAAndVolatility(t *testing.T) {
	p, _ := newTestProvider(t, DefaultConfig())
	p.mergeHistory("BTCUSDT", "1m", []domain.OHLCVBar{
		{TimestampMs: 1000, Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10)},
		{TimestampMs: 2000, Close: decimal.NewFromInt(110), Volume: decimal.NewFromInt(20)},
		{TimestampMs: 3000, Close: decimal.NewFromInt(90), Volume: decimal.NewFromInt(5)},
	})

	sma, ok := p.SMA("BTCUSDT", 3)
	assert.True(t, ok)
	assert.True(t, sma.Equal(decimal.NewFromInt(100)))

	sigma, ok := p.ReturnSigmaBps1m("BTCUSDT", 2)
	assert.True(t, ok)
	assert.True(t, sigma.IsPositive())

	vol, ok := p.CurrentBarVolume("BTCUSDT")
	assert.True(t, ok)
	assert.True(t, vol.Equal(decimal.NewFromInt(5)))
}

func TestProvider_FallingFractionAcrossUniverse(t *testing.T) {
	p, _ := newTestProvider(t, DefaultConfig())
	p.SetUniverse([]string{"BTCUSDT", "ETHUSDT"})

	p.mergeHistory("BTCUSDT", "1m", []domain.OHLCVBar{
		{TimestampMs: 1000, Close: decimal.NewFromInt(100)},
		{TimestampMs: 2000, Close: decimal.NewFromInt(90)}, // falling
	})
	p.mergeHistory("ETHUSDT", "1m", []domain.OHLCVBar{
		{TimestampMs: 1000, Close: decimal.NewFromInt(100)},
		{TimestampMs: 2000, Close: decimal.NewFromInt(110)}, // rising
	})

	fraction, ok := p.FallingFraction(1, decimal.Zero)
	assert.True(t, ok)
	assert.True(t, fraction.Equal(decimal.NewFromFloat(0.5)))
}

func TestProvider_FallingFractionNoUniverse(t *testing.T) {
	p, _ := newTestProvider(t, DefaultConfig())
	_, ok := p.FallingFraction(1, decimal.Zero)
	assert.False(t, ok)
}
