package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrOrderRejected   = errors.New("order rejected")
	ErrPartialFill     = errors.New("order partially filled")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrLockHeld        = errors.New("lock already held")
	ErrQueueClosed     = errors.New("queue closed")
	ErrSymbolHalted    = errors.New("symbol halted")
	ErrInFlight        = errors.New("execution already in flight")
	ErrTradingDisabled = errors.New("trading disabled")
	ErrShuttingDown    = errors.New("shutting down")
)

// TransientVenueError marks a venue failure that may succeed on retry, such
// as a timeout, a rate limit or a 5xx response.
type TransientVenueError struct {
	Venue Venue
	Op    string
	Err   error
}

func (e *TransientVenueError) Error() string {
	return fmt.Sprintf("%s: %s: transient: %v", e.Venue, e.Op, e.Err)
}

func (e *TransientVenueError) Unwrap() error { return e.Err }

// Temporary reports true; it lets callers test with an interface assertion.
func (e *TransientVenueError) Temporary() bool { return true }

// CapacityError is returned by a full queue under the RAISE policy.
type CapacityError struct {
	Queue    string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("queue %s: at capacity (%d)", e.Queue, e.Capacity)
}

// RiskLimitBreach blocks admission of an opportunity.
type RiskLimitBreach struct {
	Limit  string
	Symbol string
	Detail string
}

func (e *RiskLimitBreach) Error() string {
	return fmt.Sprintf("risk limit %s breached for %s: %s", e.Limit, e.Symbol, e.Detail)
}

// HedgeFailure means a leg filled, the offsetting leg failed and the hedge
// did not close the exposure. Remaining contracts are still open. The symbol
// is halted until an operator intervenes.
type HedgeFailure struct {
	Symbol      string
	Venue       Venue
	ExecutionID string
	Remaining   int64
	Err         error
}

func (e *HedgeFailure) Error() string {
	return fmt.Sprintf("hedge failed for %s on %s (execution %s, %d open): %v",
		e.Symbol, e.Venue, e.ExecutionID, e.Remaining, e.Err)
}

func (e *HedgeFailure) Unwrap() error { return e.Err }

// IsTransient reports whether err is, or wraps, a TransientVenueError.
func IsTransient(err error) bool {
	var t *TransientVenueError
	return errors.As(err, &t)
}
