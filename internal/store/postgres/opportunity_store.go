package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, symbol, legs, gross_edge, net_edge,
	total_fees, settlement_fees, notional, detected_at`

// Insert stores a detected opportunity. Re-inserting an id is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs of %s: %w", opp.ID, err)
	}

	const query = `
		INSERT INTO opportunities (
			id, symbol, legs, gross_edge, net_edge,
			total_fees, settlement_fees, notional, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		opp.ID, opp.Symbol, legs, opp.GrossEdge, opp.NetEdge,
		opp.TotalFees, opp.SettlementFees, opp.Notional,
		time.Unix(0, opp.DetectedAt).UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns up to limit opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunitySelectCols+` FROM opportunities ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, opp)
	}
	return out, rows.Err()
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp        domain.ArbitrageOpportunity
		legs       []byte
		detectedAt time.Time
	)
	if err := row.Scan(
		&opp.ID, &opp.Symbol, &legs, &opp.GrossEdge, &opp.NetEdge,
		&opp.TotalFees, &opp.SettlementFees, &opp.Notional, &detectedAt,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	if err := json.Unmarshal(legs, &opp.Legs); err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("unmarshal legs: %w", err)
	}
	opp.DetectedAt = detectedAt.UnixNano()
	return opp, nil
}
