package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the terminal (or current) state of a two-leg execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCompleted ExecutionStatus = "completed" // both legs filled
	ExecutionAborted   ExecutionStatus = "aborted"   // leg 1 failed, nothing filled
	ExecutionHedged    ExecutionStatus = "hedged"    // leg 2 failed, leg 1 offset
	ExecutionFailed    ExecutionStatus = "failed"    // hedge failed, symbol halted
)

// Terminal reports whether no further transitions are possible.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionPending
}

// LegResult records what happened to one order of an execution.
type LegResult struct {
	Order Order  `json:"order"`
	Fill  *Fill  `json:"fill,omitempty"`
	Error string `json:"error"`
}

// Execution is the record of one attempt to trade an opportunity.
type Execution struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	Symbol        string          `json:"symbol"`
	Status        ExecutionStatus `json:"status"`
	Leg1          LegResult       `json:"leg1"`
	Leg2          *LegResult      `json:"leg2,omitempty"`
	Hedge         *LegResult      `json:"hedge,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`    // booked by the hedge, zero otherwise
	Fees          decimal.Decimal `json:"fees"`
	Paper         bool            `json:"paper"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// SubmitOutcome is the synchronous answer of the execution manager to an
// opportunity.
type SubmitOutcome string

const (
	SubmitAccepted SubmitOutcome = "accepted"
	SubmitDropped  SubmitOutcome = "dropped"  // symbol already in flight or capital exhausted
	SubmitRejected SubmitOutcome = "rejected" // admission check failed
)
