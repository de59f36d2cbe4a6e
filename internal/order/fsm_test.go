package order

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

func newTestFSM() *FSM {
	return NewFSM("BTCUSDT", domain.SideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), domain.TIFGTC, "bot-test")
}

func TestFSM_InitialState(t *testing.T) {
	f := newTestFSM()
	assert.Equal(t, domain.OrderStatusNew, f.Status())
}

func TestFSM_RecordFill_PartialThenFilled(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.RecordFill(decimal.NewFromInt(4), decimal.NewFromInt(100), decimal.NewFromFloat(0.01)))
	assert.Equal(t, domain.OrderStatusPartial, f.Status())

	require.NoError(t, f.RecordFill(decimal.NewFromInt(6), decimal.NewFromInt(102), decimal.NewFromFloat(0.01)))
	assert.Equal(t, domain.OrderStatusFilled, f.Status())

	snap := f.Snapshot()
	assert.True(t, snap.FilledQty.Equal(decimal.NewFromInt(10)))
	// weighted avg: (4*100 + 6*102) / 10 = 101.2
	assert.True(t, snap.AvgFillPrice.Equal(decimal.NewFromFloat(101.2)))
	assert.True(t, snap.TotalFees.Equal(decimal.NewFromFloat(0.02)))
}

func TestFSM_FillWithinToleranceCompletesFill(t *testing.T) {
	f := newTestFSM()
	// 99.9% filled is within the default 0.1% tolerance.
	require.NoError(t, f.RecordFill(decimal.NewFromFloat(9.99), decimal.NewFromInt(100), decimal.Zero))
	assert.Equal(t, domain.OrderStatusFilled, f.Status())
}

func TestFSM_RecordFillOnTerminalIsRejected(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Cancel())
	err := f.RecordFill(decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.Zero)
	assert.Error(t, err)
}

func TestFSM_InvalidTransitionRejected(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Transition(domain.OrderStatusFilled))
	err := f.Transition(domain.OrderStatusPending)
	assert.Error(t, err)
}

func TestFSM_CancelIsIdempotent(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Cancel())
	assert.NoError(t, f.Cancel())
}

func TestFSM_FailIsNoOpOnTerminal(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Cancel())
	f.Fail("network error")
	assert.Equal(t, domain.OrderStatusCanceled, f.Status())
}

func TestFSM_NoAutoTransitionStaysManual(t *testing.T) {
	f := newTestFSM()
	f.AutoTransition = false
	require.NoError(t, f.Transition(domain.OrderStatusPending))
	require.NoError(t, f.RecordFill(decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero))
	assert.Equal(t, domain.OrderStatusPending, f.Status())
}

func TestFSM_TerminalTransitionSetsCompletedTS(t *testing.T) {
	f := newTestFSM()
	assert.Nil(t, f.CompletedTS())

	require.NoError(t, f.Transition(domain.OrderStatusFilled))
	require.NotNil(t, f.CompletedTS())

	snap := f.Snapshot()
	require.NotNil(t, snap.CompletedTS)
	assert.False(t, snap.CompletedTS.IsZero())
}

func TestFSM_HistoryRecordsEveryTransition(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Transition(domain.OrderStatusPending))
	require.NoError(t, f.RecordFill(decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero))

	hist := f.History()
	require.Len(t, hist, 3) // NEW->PENDING, PENDING->PARTIAL, PARTIAL->FILLED
	assert.Equal(t, domain.OrderStatusNew, hist[0].From)
	assert.Equal(t, domain.OrderStatusPending, hist[0].To)
	assert.Equal(t, domain.OrderStatusFilled, hist[len(hist)-1].To)
}

func TestFSM_MarshalUnmarshalRoundTripsStateHistoryAndMetrics(t *testing.T) {
	f := newTestFSM()
	require.NoError(t, f.Transition(domain.OrderStatusPending))
	require.NoError(t, f.RecordFill(decimal.NewFromInt(4), decimal.NewFromInt(100), decimal.NewFromFloat(0.02)))

	data, err := json.Marshal(f)
	require.NoError(t, err)

	restored := &FSM{}
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, f.Status(), restored.Status())
	assert.Equal(t, f.History(), restored.History())
	origSnap, restoredSnap := f.Snapshot(), restored.Snapshot()
	assert.True(t, origSnap.FilledQty.Equal(restoredSnap.FilledQty))
	assert.True(t, origSnap.AvgFillPrice.Equal(restoredSnap.AvgFillPrice))
	assert.True(t, origSnap.TotalFees.Equal(restoredSnap.TotalFees))
}

func TestGenerateClientOrderID_DeterministicAndPrefixed(t *testing.T) {
	id1 := GenerateClientOrderID("BTCUSDT", domain.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), domain.OrderTypeLimit)
	id2 := GenerateClientOrderID("BTCUSDT", domain.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), domain.OrderTypeLimit)
	assert.Equal(t, id1, id2)
	assert.True(t, len(id1) > len(clientOrderIDPrefix))
	assert.Equal(t, clientOrderIDPrefix, id1[:len(clientOrderIDPrefix)])

	id3 := GenerateClientOrderID("ETHUSDT", domain.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), domain.OrderTypeLimit)
	assert.NotEqual(t, id1, id3)
}
