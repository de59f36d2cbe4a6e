package trigger

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"
)

type windowPoint struct {
	ts    time.Time
	price decimal.Decimal
}

// RollingWindow is a fixed-span FIFO of (timestamp, price) points used to
// derive the mode-2/3 rolling peak. Push evicts points older than the
// lookback span and lazily recomputes the running max only when the
// evicted point was the current max.
type RollingWindow struct {
	lookback time.Duration
	points   *list.List // back = newest
	max      decimal.Decimal
	maxValid bool
}

func NewRollingWindow(lookback time.Duration) *RollingWindow {
	return &RollingWindow{lookback: lookback, points: list.New()}
}

// Push adds a new observation and evicts everything older than the lookback
// span relative to now.
func (w *RollingWindow) Push(now time.Time, price decimal.Decimal) {
	w.points.PushBack(windowPoint{ts: now, price: price})
	if !w.maxValid || price.GreaterThan(w.max) {
		w.max = price
		w.maxValid = true
	}

	cutoff := now.Add(-w.lookback)
	evictedMax := false
	for e := w.points.Front(); e != nil; {
		p := e.Value.(windowPoint)
		if !p.ts.Before(cutoff) {
			break
		}
		next := e.Next()
		if w.maxValid && p.price.Equal(w.max) {
			evictedMax = true
		}
		w.points.Remove(e)
		e = next
	}

	if evictedMax {
		w.recompute()
	}
}

func (w *RollingWindow) recompute() {
	w.maxValid = false
	for e := w.points.Front(); e != nil; e = e.Next() {
		p := e.Value.(windowPoint)
		if !w.maxValid || p.price.GreaterThan(w.max) {
			w.max = p.price
			w.maxValid = true
		}
	}
}

// Max returns the current window maximum; the zero value if the window is
// empty.
func (w *RollingWindow) Max() decimal.Decimal {
	if !w.maxValid {
		return decimal.Zero
	}
	return w.max
}

// Len reports the number of points currently retained.
func (w *RollingWindow) Len() int {
	return w.points.Len()
}
