package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities. Append-only.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
}

// ExecutionStore persists terminal executions. Append-only.
type ExecutionStore interface {
	Insert(ctx context.Context, exec Execution) error
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	// ListBetween returns executions completed in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]Execution, error)
	// SumPnL returns realized P&L minus fees of executions completed since.
	SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// PositionStore persists point-in-time position snapshots. Append-only.
type PositionStore interface {
	InsertSnapshot(ctx context.Context, pos Position) error
	Latest(ctx context.Context) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
