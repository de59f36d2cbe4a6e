package exit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// Signal is one queued exit request.
type Signal struct {
	Symbol           string
	Reason           Rule
	PositionSnapshot domain.Position
	CurrentPrice     decimal.Decimal
	QueuedAt         time.Time
}

// Queue is a bounded FIFO of exit signals with short-window per-symbol
// deduplication (duplicate suppression TTL default 2s).
type Queue struct {
	mu        sync.Mutex
	items     []Signal
	maxSize   int
	dedupeTTL time.Duration
	lastQueuedAt map[string]time.Time
}

func NewQueue(maxSize int, dedupeTTL time.Duration) *Queue {
	return &Queue{
		maxSize:      maxSize,
		dedupeTTL:    dedupeTTL,
		lastQueuedAt: make(map[string]time.Time),
	}
}

// Push appends a signal unless it's a duplicate for the same symbol within
// the dedupe window, or the queue is at capacity. Returns whether it was
// enqueued.
func (q *Queue) Push(sig Signal, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if last, ok := q.lastQueuedAt[sig.Symbol]; ok && now.Sub(last) < q.dedupeTTL {
		return false
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return false
	}

	sig.QueuedAt = now
	q.items = append(q.items, sig)
	q.lastQueuedAt[sig.Symbol] = now
	return true
}

// Drain removes and returns up to n signals in FIFO order.
func (q *Queue) Drain(n int) []Signal {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := append([]Signal(nil), q.items[:n]...)
	q.items = q.items[n:]
	return out
}

// Len reports the current queue depth (used for the exit queue depth
// telemetry gauge).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
