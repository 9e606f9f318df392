package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// ArbService persists opportunities and executions, publishes them on the
// signal bus and writes the audit log. Bus and audit failures are logged
// and swallowed; store failures are returned.
type ArbService struct {
	opps   domain.OpportunityStore
	execs  domain.ExecutionStore
	pos    domain.PositionStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArbService creates an ArbService. Any dependency may be nil, in which
// case that side effect is skipped.
func NewArbService(
	opps domain.OpportunityStore,
	execs domain.ExecutionStore,
	pos domain.PositionStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArbService {
	return &ArbService{
		opps:   opps,
		execs:  execs,
		pos:    pos,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "arb_service")),
	}
}

// RecordOpportunity stores opp and publishes it.
func (s *ArbService) RecordOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if s.opps != nil {
		if err := s.opps.Insert(ctx, opp); err != nil {
			return fmt.Errorf("arb_service: insert opportunity: %w", err)
		}
	}

	s.publish(ctx, domain.ChannelOpportunities, map[string]any{
		"event":      "opportunity",
		"id":         opp.ID,
		"symbol":     opp.Symbol,
		"leg1_venue": string(opp.Legs[0].Venue),
		"leg1":       fmt.Sprintf("%s@%s", opp.Legs[0].Outcome, opp.Legs[0].Price),
		"leg2_venue": string(opp.Legs[1].Venue),
		"leg2":       fmt.Sprintf("%s@%s", opp.Legs[1].Outcome, opp.Legs[1].Price),
		"size":       opp.Size(),
		"net_edge":   opp.NetEdge.String(),
		"profit":     opp.ExpectedProfit().String(),
	})
	return nil
}

// RecordExecution stores a terminal execution, publishes it, appends it to
// the execution stream and audits it.
func (s *ArbService) RecordExecution(ctx context.Context, exec domain.Execution) error {
	if s.execs != nil {
		if err := s.execs.Insert(ctx, exec); err != nil {
			return fmt.Errorf("arb_service: insert execution: %w", err)
		}
	}

	evt := map[string]any{
		"event":          "execution",
		"id":             exec.ID,
		"opportunity_id": exec.OpportunityID,
		"symbol":         exec.Symbol,
		"status":         string(exec.Status),
		"realized_pnl":   exec.RealizedPnL.String(),
		"fees":           exec.Fees.String(),
		"paper":          exec.Paper,
		"duration_ms":    exec.CompletedAt.Sub(exec.StartedAt).Milliseconds(),
	}
	s.publish(ctx, domain.ChannelExecutions, evt)

	if s.bus != nil {
		data, _ := json.Marshal(evt)
		if err := s.bus.StreamAppend(ctx, domain.StreamExecutions, data); err != nil {
			s.logger.WarnContext(ctx, "arb_service: stream append failed",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.Audit(ctx, "execution_"+string(exec.Status), evt)

	s.logger.InfoContext(ctx, "arb_service: execution recorded",
		slog.String("execution_id", exec.ID),
		slog.String("symbol", exec.Symbol),
		slog.String("status", string(exec.Status)),
	)
	return nil
}

// RecordPosition appends a position snapshot.
func (s *ArbService) RecordPosition(ctx context.Context, pos domain.Position) error {
	if s.pos == nil {
		return nil
	}
	if err := s.pos.InsertSnapshot(ctx, pos); err != nil {
		return fmt.Errorf("arb_service: insert position snapshot: %w", err)
	}
	return nil
}

// Halted announces a halted symbol on the bus and in the audit log.
func (s *ArbService) Halted(ctx context.Context, symbol, reason string) {
	detail := map[string]any{
		"event":  "symbol_halted",
		"symbol": symbol,
		"reason": reason,
		"at":     time.Now().UTC().Format(time.RFC3339),
	}
	s.publish(ctx, domain.ChannelHalts, detail)
	s.Audit(ctx, "symbol_halted", detail)
}

// Resumed announces a cleared halt.
func (s *ArbService) Resumed(ctx context.Context, symbol string) {
	detail := map[string]any{
		"event":  "symbol_resumed",
		"symbol": symbol,
		"at":     time.Now().UTC().Format(time.RFC3339),
	}
	s.publish(ctx, domain.ChannelHalts, detail)
	s.Audit(ctx, "symbol_resumed", detail)
}

// Audit writes one audit log row.
func (s *ArbService) Audit(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "arb_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// ListRecentOpportunities returns up to limit stored opportunities.
func (s *ArbService) ListRecentOpportunities(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if s.opps == nil {
		return nil, nil
	}
	opps, err := s.opps.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("arb_service: list opportunities: %w", err)
	}
	return opps, nil
}

// ListRecentExecutions returns up to limit stored executions.
func (s *ArbService) ListRecentExecutions(ctx context.Context, limit int) ([]domain.Execution, error) {
	if s.execs == nil {
		return nil, nil
	}
	execs, err := s.execs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("arb_service: list executions: %w", err)
	}
	return execs, nil
}

// LatestPositions returns the most recent persisted snapshot per position.
func (s *ArbService) LatestPositions(ctx context.Context) ([]domain.Position, error) {
	if s.pos == nil {
		return nil, nil
	}
	pos, err := s.pos.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("arb_service: latest positions: %w", err)
	}
	return pos, nil
}

func (s *ArbService) publish(ctx context.Context, channel string, evt map[string]any) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(evt)
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "arb_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
