// Package apperrors is the sentinel-error taxonomy shared by the
// exchange client, order FSM, and engine. Callers should compare with
// errors.Is; wrapping with fmt.Errorf("...: %w", err) preserves the
// sentinel through context.Context cancellation and retry layers.
package apperrors

import "errors"

var (
	// ErrNetwork covers connection, timeout, DNS, TLS handshake, and
	// generic 5xx responses. Retried with bounded backoff.
	ErrNetwork = errors.New("network error")

	// ErrRateLimitExceeded is an explicit 429 or venue-specific
	// indicator. Repeated occurrences open a per-symbol circuit breaker.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrExchangeError is an opaque 5xx/venue-internal failure not
	// otherwise classified.
	ErrExchangeError = errors.New("exchange error")

	// ErrInvalidRequest covers price-tick, step-size, min-notional, and
	// disallowed TIF violations. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidOrderParameter is a narrower ErrInvalidRequest used by
	// order-sizing/rounding call sites.
	ErrInvalidOrderParameter = errors.New("invalid order parameter")

	// ErrInvalidSymbol flags an unrecognized or delisted symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrOrderNotFound is returned by fetch/cancel when the exchange has
	// no record of the order. Cancel treats it as an idempotent success.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateOrder is the exchange rejecting a client-order-id it
	// has already accepted. The wrapper recovers by fetching the
	// existing order instead of treating this as a failure.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrTimestampOutOfBounds is the recvWindow/clock-skew condition.
	// Policy: resync server time once and retry immediately.
	ErrTimestampOutOfBounds = errors.New("timestamp out of bounds")

	// ErrAuthenticationFailed flags bad API credentials. Fatal at
	// startup, not retried.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInsufficientFunds flags a margin/balance rejection on order
	// placement. Not retried.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrQtyRoundedToZero is a recoverable local sizing failure: the
	// caller should skip the decision with reason qty_rounded_to_zero.
	ErrQtyRoundedToZero = errors.New("quantity rounded to zero")

	// ErrFSMTerminalTransition is a programming error: an attempt to
	// transition an OrderFSM out of a terminal state. Never expected at
	// runtime; callers must abort the current operation, not continue
	// mutating the FSM.
	ErrFSMTerminalTransition = errors.New("order fsm: cannot transition from terminal state")

	// ErrFSMInvalidTransition is a rejected (but non-terminal-state)
	// transition attempt, e.g. PARTIAL -> PENDING.
	ErrFSMInvalidTransition = errors.New("order fsm: invalid state transition")

	// ErrShutdownInProgress is returned by call sites that check the
	// shutdown flag before starting new blocking work.
	ErrShutdownInProgress = errors.New("shutdown in progress")
)
