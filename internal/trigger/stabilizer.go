package trigger

import "sync"

// Stabilizer requires a condition to hold for ConfirmTicks consecutive
// Step calls per symbol before reporting confirmed, guarding against a
// trigger that fires on a single noisy tick.
type Stabilizer struct {
	confirmTicks int

	mu      sync.Mutex
	streaks map[string]int
}

func NewStabilizer(confirmTicks int) *Stabilizer {
	if confirmTicks < 1 {
		confirmTicks = 1
	}
	return &Stabilizer{confirmTicks: confirmTicks, streaks: make(map[string]int)}
}

// Step increments the symbol's consecutive-true counter on conditionOK,
// resets it on false, and reports whether the counter has reached the
// configured threshold.
func (s *Stabilizer) Step(symbol string, conditionOK bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !conditionOK {
		s.streaks[symbol] = 0
		return false
	}
	s.streaks[symbol]++
	return s.streaks[symbol] >= s.confirmTicks
}

// Reset clears the streak for a symbol, e.g. after it confirms and is acted
// on, so the next signal starts a fresh count.
func (s *Stabilizer) Reset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streaks, symbol)
}
