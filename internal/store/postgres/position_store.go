package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// PositionStore implements domain.PositionStore as an append-only table of
// snapshots.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// InsertSnapshot appends pos.
func (s *PositionStore) InsertSnapshot(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO position_snapshots (
			symbol, venue, quantity, avg_entry_price, realized_pnl,
			unrealized_pnl, fees_paid, mark, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		pos.Symbol, string(pos.Venue), pos.Quantity, pos.AvgEntryPrice, pos.RealizedPnL,
		pos.UnrealizedPnL, pos.FeesPaid, pos.Mark, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert position snapshot %s/%s: %w", pos.Symbol, pos.Venue, err)
	}
	return nil
}

// Latest returns the newest snapshot of every (symbol, venue).
func (s *PositionStore) Latest(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT DISTINCT ON (symbol, venue)
			symbol, venue, quantity, avg_entry_price, realized_pnl,
			unrealized_pnl, fees_paid, mark, updated_at
		FROM position_snapshots
		ORDER BY symbol, venue, id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p     domain.Position
			venue string
		)
		if err := rows.Scan(
			&p.Symbol, &venue, &p.Quantity, &p.AvgEntryPrice, &p.RealizedPnL,
			&p.UnrealizedPnL, &p.FeesPaid, &p.Mark, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position snapshot: %w", err)
		}
		p.Venue = domain.Venue(venue)
		out = append(out, p)
	}
	return out, rows.Err()
}
