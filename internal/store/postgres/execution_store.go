package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore. Leg results are stored as
// JSONB so the hedge record keeps its order, fill and error together.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, opportunity_id, symbol, status, leg1, leg2, hedge,
	realized_pnl, fees, paper, started_at, completed_at`

// Insert stores a terminal execution. Re-inserting an id is a no-op.
func (s *ExecutionStore) Insert(ctx context.Context, exec domain.Execution) error {
	leg1, err := json.Marshal(exec.Leg1)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg1 of %s: %w", exec.ID, err)
	}
	leg2, err := marshalLeg(exec.Leg2)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg2 of %s: %w", exec.ID, err)
	}
	hedge, err := marshalLeg(exec.Hedge)
	if err != nil {
		return fmt.Errorf("postgres: marshal hedge of %s: %w", exec.ID, err)
	}

	const query = `
		INSERT INTO executions (
			id, opportunity_id, symbol, status, leg1, leg2, hedge,
			realized_pnl, fees, paper, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		exec.ID, exec.OpportunityID, exec.Symbol, string(exec.Status),
		leg1, leg2, hedge,
		exec.RealizedPnL, exec.Fees, exec.Paper,
		exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// ListRecent returns up to limit executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	return collectExecutions(rows)
}

// ListBetween returns executions completed in [from, to), oldest first.
func (s *ExecutionStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		WHERE completed_at >= $1 AND completed_at < $2
		ORDER BY completed_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions between %v and %v: %w", from, to, err)
	}
	return collectExecutions(rows)
}

// SumPnL returns realized P&L minus fees of executions completed since.
func (s *ExecutionStore) SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_pnl - fees), 0) FROM executions WHERE completed_at >= $1`,
		since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum execution pnl: %w", err)
	}
	return sum, nil
}

func collectExecutions(rows pgx.Rows) ([]domain.Execution, error) {
	defer rows.Close()
	var out []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var (
		exec              domain.Execution
		status            string
		leg1, leg2, hedge []byte
	)
	if err := row.Scan(
		&exec.ID, &exec.OpportunityID, &exec.Symbol, &status,
		&leg1, &leg2, &hedge,
		&exec.RealizedPnL, &exec.Fees, &exec.Paper,
		&exec.StartedAt, &exec.CompletedAt,
	); err != nil {
		return domain.Execution{}, err
	}
	exec.Status = domain.ExecutionStatus(status)

	if err := json.Unmarshal(leg1, &exec.Leg1); err != nil {
		return domain.Execution{}, fmt.Errorf("unmarshal leg1: %w", err)
	}
	var err error
	if exec.Leg2, err = unmarshalLeg(leg2); err != nil {
		return domain.Execution{}, fmt.Errorf("unmarshal leg2: %w", err)
	}
	if exec.Hedge, err = unmarshalLeg(hedge); err != nil {
		return domain.Execution{}, fmt.Errorf("unmarshal hedge: %w", err)
	}
	return exec, nil
}

// marshalLeg maps a nil leg to SQL NULL.
func marshalLeg(leg *domain.LegResult) ([]byte, error) {
	if leg == nil {
		return nil, nil
	}
	return json.Marshal(leg)
}

func unmarshalLeg(data []byte) (*domain.LegResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var leg domain.LegResult
	if err := json.Unmarshal(data, &leg); err != nil {
		return nil, err
	}
	return &leg, nil
}
