// Package anchor tracks, per symbol, the reference price the drop-trigger
// measures distance from: the session peak, an external rolling-window
// peak, or (mode 4) a persisted sticky anchor that resets on a buy fill or
// once it has gone stale.
package anchor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/state"
)

// Mode selects which anchor formula compute_anchor uses.
type Mode int

const (
	ModeSessionPeak   Mode = 1
	ModeRollingPeak   Mode = 2
	ModeMaxOfBoth     Mode = 3
	ModeStickyPersist Mode = 4
)

type symbolState struct {
	sessionStart decimal.Decimal
	sessionPeak  decimal.Decimal
	anchor       decimal.Decimal
	anchorTS     int64 // unix seconds, zero if never set
}

// Config bounds the clamps and persistence applied to every computed anchor.
type Config struct {
	Mode                Mode
	ClampMaxAbovePeakPct float64 // anchor <= session_peak * (1 + pct/100)
	MaxStartDropPct      float64 // anchor >= session_start * (1 - pct/100)
	StaleMinutes         int     // mode 4: anchor resets to base after this much inactivity
	MaxAgeHours          int     // load-time discard threshold for persisted entries
	PersistPath          string  // mode 4 only; empty disables persistence
}

// Manager is the per-symbol anchor store. Safe for concurrent use, though
// the engine only ever calls it from the single engine thread.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*symbolState
}

func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, states: make(map[string]*symbolState)}
}

// Load restores the mode-4 persisted anchor map, discarding entries older
// than cfg.MaxAgeHours.
func (m *Manager) Load() error {
	if m.cfg.Mode != ModeStickyPersist || m.cfg.PersistPath == "" {
		return nil
	}
	var records []domain.AnchorRecord
	if err := state.LoadJSON(m.cfg.PersistPath, &records); err != nil {
		return err
	}
	maxAge := int64(m.cfg.MaxAgeHours) * 3600
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	for _, rec := range records {
		if maxAge > 0 && now-rec.AnchorTimeS > maxAge {
			continue
		}
		s := m.symbolLocked(rec.Symbol)
		s.anchor = rec.AnchorPrice
		s.anchorTS = rec.AnchorTimeS
	}
	return nil
}

func (m *Manager) symbolLocked(symbol string) *symbolState {
	s, ok := m.states[symbol]
	if !ok {
		s = &symbolState{}
		m.states[symbol] = s
	}
	return s
}

// NotePrice records a freshly observed price: sets session_start on first
// observation and bumps session_peak when price exceeds it.
func (m *Manager) NotePrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.symbolLocked(symbol)
	if s.sessionStart.IsZero() {
		s.sessionStart = price
		s.sessionPeak = price
		return
	}
	if price.GreaterThan(s.sessionPeak) {
		s.sessionPeak = price
	}
}

// ComputeAnchor returns the clamped anchor for symbol given the current
// rolling-window peak (ignored outside modes 2/3/4).
func (m *Manager) ComputeAnchor(symbol string, rollingPeak decimal.Decimal, now time.Time) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.symbolLocked(symbol)

	var raw decimal.Decimal
	switch m.cfg.Mode {
	case ModeSessionPeak:
		raw = s.sessionPeak
	case ModeRollingPeak:
		raw = rollingPeak
	case ModeMaxOfBoth:
		raw = decimal.Max(s.sessionPeak, rollingPeak)
	case ModeStickyPersist:
		base := decimal.Max(s.sessionPeak, rollingPeak)
		staleAfter := int64(m.cfg.StaleMinutes) * 60
		nowS := now.Unix()
		if s.anchorTS == 0 || (staleAfter > 0 && nowS-s.anchorTS > staleAfter) {
			raw = base
		} else {
			raw = decimal.Max(base, s.anchor)
		}
		s.anchor = raw
		s.anchorTS = nowS
		m.persistLocked()
	default:
		raw = s.sessionPeak
	}

	return clamp(raw, s.sessionPeak, s.sessionStart, m.cfg.ClampMaxAbovePeakPct, m.cfg.MaxStartDropPct)
}

func clamp(anchor, sessionPeak, sessionStart decimal.Decimal, clampAbovePeakPct, maxStartDropPct float64) decimal.Decimal {
	if sessionPeak.IsPositive() && clampAbovePeakPct >= 0 {
		ceiling := sessionPeak.Mul(decimal.NewFromFloat(1 + clampAbovePeakPct/100))
		if anchor.GreaterThan(ceiling) {
			anchor = ceiling
		}
	}
	if sessionStart.IsPositive() && maxStartDropPct >= 0 {
		floor := sessionStart.Mul(decimal.NewFromFloat(1 - maxStartDropPct/100))
		if anchor.LessThan(floor) {
			anchor = floor
		}
	}
	return anchor
}

// ResetAnchor is called after a successful buy fill (mode 4 only) so the
// next drop measurement starts from the fill price, not the stale anchor.
// The session peak is lowered to the fill price too, so the next
// ComputeAnchor does not lift the anchor straight back to the old peak.
func (m *Manager) ResetAnchor(symbol string, price decimal.Decimal, now time.Time) {
	if m.cfg.Mode != ModeStickyPersist {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.symbolLocked(symbol)
	s.anchor = price
	s.sessionPeak = price
	s.anchorTS = now.Unix()
	m.persistLocked()
}

// persistLocked must be called with m.mu held.
func (m *Manager) persistLocked() {
	if m.cfg.Mode != ModeStickyPersist || m.cfg.PersistPath == "" {
		return
	}
	records := make([]domain.AnchorRecord, 0, len(m.states))
	for symbol, s := range m.states {
		if s.anchorTS == 0 {
			continue
		}
		records = append(records, domain.AnchorRecord{
			Symbol:      symbol,
			AnchorPrice: s.anchor,
			AnchorTimeS: s.anchorTS,
		})
	}
	_ = state.SaveJSON(m.cfg.PersistPath, records)
}

// SessionPeak exposes the current session peak for telemetry/snapshots.
func (m *Manager) SessionPeak(symbol string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbolLocked(symbol).sessionPeak
}
