package telemetry

import (
	"context"
	"testing"
)

func newTestMetrics(t *testing.T) *MetricsHolder {
	t.Helper()
	m := &MetricsHolder{
		unrealizedPnLMap:  make(map[string]float64),
		positionSizeMap:   make(map[string]float64),
		cooldownActiveMap: make(map[string]int64),
	}
	if err := m.InitMetrics(GetMeter("metrics_test")); err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	return m
}

func TestRecordCycleLatency(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCycleLatency(context.Background(), 12.5)
}

func TestRecordOrderPlacedAndFilled(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordOrderPlaced(context.Background())
	m.RecordOrderFilled(context.Background())
}

func TestUninitializedMetricsNeverPanic(t *testing.T) {
	m := &MetricsHolder{}
	m.RecordCycleLatency(context.Background(), 1)
	m.RecordOrderPlaced(context.Background())
	m.RecordOrderFilled(context.Background())
}

func TestSetEquityTracksPeakAndDrawdown(t *testing.T) {
	m := newTestMetrics(t)

	m.SetEquity(1000)
	if m.drawdownPct != 0 {
		t.Errorf("expected 0 drawdown at first peak, got %v", m.drawdownPct)
	}

	m.SetEquity(900)
	if m.drawdownPct != 10 {
		t.Errorf("expected 10%% drawdown off a 1000 peak at 900, got %v", m.drawdownPct)
	}

	m.SetEquity(1100)
	if m.drawdownPct != 0 {
		t.Errorf("expected drawdown to reset to 0 on a new peak, got %v", m.drawdownPct)
	}
	if m.peakEquity != 1100 {
		t.Errorf("expected peak to advance to 1100, got %v", m.peakEquity)
	}
}

func TestSetEquityZeroPeakDoesNotDivideByZero(t *testing.T) {
	m := newTestMetrics(t)
	m.SetEquity(0)
	if m.drawdownPct != 0 {
		t.Errorf("expected 0 drawdown with a zero peak, got %v", m.drawdownPct)
	}
}
