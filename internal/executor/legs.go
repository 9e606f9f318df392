package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

const (
	purposeLeg1  = "leg1"
	purposeLeg2  = "leg2"
	purposeHedge = "hedge"
)

// execute drives one opportunity to a terminal state.
func (m *Manager) execute(ctx context.Context, opp domain.ArbitrageOpportunity) {
	exec := domain.Execution{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		Status:        domain.ExecutionPending,
		Paper:         m.cfg.Paper,
		StartedAt:     time.Now().UTC(),
	}
	log := m.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
	)

	if m.locks != nil && m.cfg.LockTTL > 0 {
		unlock, err := m.locks.Acquire(ctx, lockKeyPrefix+opp.Symbol, m.cfg.LockTTL)
		if err != nil {
			m.metrics.ExecutionFinished("lock_held")
			log.InfoContext(ctx, "executor: symbol locked elsewhere, skipping",
				slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	m.run(ctx, log, opp, &exec)

	exec.CompletedAt = time.Now().UTC()
	m.metrics.ExecutionFinished(string(exec.Status))
	m.remember(exec)
	if m.sink != nil {
		m.sink.Execution(ctx, exec)
	}
	log.InfoContext(ctx, "executor: execution finished",
		slog.String("status", string(exec.Status)),
		slog.String("realized_pnl", exec.RealizedPnL.String()),
		slog.String("fees", exec.Fees.String()),
		slog.Duration("elapsed", exec.CompletedAt.Sub(exec.StartedAt)),
	)
}

func (m *Manager) run(ctx context.Context, log *slog.Logger, opp domain.ArbitrageOpportunity, exec *domain.Execution) {
	leg1 := opp.Legs[0]
	order1 := m.order(opp.Symbol, leg1.Venue, leg1.Outcome, leg1.Side, leg1.Price, leg1.Size, purposeLeg1)
	fill1, err := m.place(ctx, order1, m.cfg.LegTimeout)
	exec.Leg1 = result(order1, fill1, err)
	if err != nil {
		exec.Status = domain.ExecutionAborted
		log.WarnContext(ctx, "executor: leg 1 failed, aborting", slog.String("error", err.Error()))
		return
	}
	m.book(ctx, exec, fill1)

	// Leg 2 matches what Leg 1 actually filled.
	leg2 := opp.Legs[1]
	order2 := m.order(opp.Symbol, leg2.Venue, leg2.Outcome, leg2.Side, leg2.Price, fill1.Size, purposeLeg2)
	fill2, err := m.place(ctx, order2, m.cfg.LegTimeout)
	r2 := result(order2, fill2, err)
	exec.Leg2 = &r2

	residual := fill1.Size
	if err == nil {
		m.book(ctx, exec, fill2)
		residual -= fill2.Size
		if residual <= 0 {
			exec.Status = domain.ExecutionCompleted
			m.alert(ctx, EventExecutionCompleted, "Arbitrage executed",
				fmt.Sprintf("%s: %d contracts, expected profit %s", opp.Symbol, fill1.Size, opp.NetEdge.Mul(decimal.NewFromInt(fill1.Size))))
			return
		}
		log.WarnContext(ctx, "executor: leg 2 partially filled, hedging remainder",
			slog.Int64("filled", fill2.Size),
			slog.Int64("residual", residual))
	} else {
		log.WarnContext(ctx, "executor: leg 2 failed, hedging leg 1", slog.String("error", err.Error()))
	}

	m.hedge(ctx, log, exec, fill1, residual)
}

// hedge sells size contracts of what Leg 1 bought, on Leg 1's venue. Anything
// short of a full fill leaves exposure open and halts the symbol.
func (m *Manager) hedge(ctx context.Context, log *slog.Logger, exec *domain.Execution, fill1 domain.Fill, size int64) {
	price := m.hedgePrice(fill1)
	order := m.order(fill1.Symbol, fill1.Venue, fill1.Outcome, fill1.Side.Opposite(), price, size, purposeHedge)
	fill, err := m.place(ctx, order, m.cfg.HedgeTimeout)
	r := result(order, fill, err)
	exec.Hedge = &r

	if err != nil {
		m.hedgeFailed(ctx, log, exec, fill1, size, err)
		return
	}

	m.book(ctx, exec, fill)
	closed := decimal.NewFromInt(fill.Size)
	pnl := fill.Price.Sub(fill1.Price).Mul(closed)
	if fill1.Side == domain.OrderSideSell {
		pnl = pnl.Neg()
	}
	exec.RealizedPnL = exec.RealizedPnL.Add(pnl)

	if remaining := size - fill.Size; remaining > 0 {
		m.hedgeFailed(ctx, log, exec, fill1, remaining,
			fmt.Errorf("hedged %d of %d: %w", fill.Size, size, domain.ErrPartialFill))
		return
	}

	exec.Status = domain.ExecutionHedged
	m.alert(ctx, EventExecutionHedged, "Arbitrage hedged",
		fmt.Sprintf("%s: leg 2 failed, %d contracts unwound on %s, realized %s",
			exec.Symbol, fill.Size, fill.Venue, pnl))
}

// hedgeFailed halts the symbol with remaining contracts of Leg 1 still open.
func (m *Manager) hedgeFailed(ctx context.Context, log *slog.Logger, exec *domain.Execution, fill1 domain.Fill, remaining int64, err error) {
	exec.Status = domain.ExecutionFailed
	hf := &domain.HedgeFailure{
		Symbol:      exec.Symbol,
		Venue:       fill1.Venue,
		ExecutionID: exec.ID,
		Remaining:   remaining,
		Err:         err,
	}
	log.ErrorContext(ctx, "executor: hedge failed, halting symbol",
		slog.String("venue", string(fill1.Venue)),
		slog.Int64("exposure", remaining),
		slog.String("error", hf.Error()))
	m.risk.Halt(exec.Symbol, hf.Error())
	if m.arb != nil {
		m.arb.Halted(ctx, exec.Symbol, hf.Error())
	}
	m.alert(ctx, EventHedgeFailed, "HEDGE FAILED: manual intervention required",
		fmt.Sprintf("%s: %d %s %s open on %s. Trading halted. %v",
			exec.Symbol, remaining, fill1.Outcome, fill1.Side, fill1.Venue, err))
}

// hedgePrice is the latest bid for Leg 1's outcome less the hedge slippage,
// clamped to the contract bounds. Without a quote the Leg 1 price is used.
func (m *Manager) hedgePrice(fill1 domain.Fill) decimal.Decimal {
	ref := fill1.Price
	if m.quotes != nil {
		if t, ok := m.quotes.Latest(fill1.Symbol, fill1.Venue); ok {
			if fill1.Side == domain.OrderSideBuy {
				ref = t.Bid(fill1.Outcome)
			} else {
				ask, _ := t.Ask(fill1.Outcome)
				ref = ask
			}
		}
	}
	var p decimal.Decimal
	if fill1.Side == domain.OrderSideBuy {
		p = ref.Sub(m.cfg.HedgeSlippage)
	} else {
		p = ref.Add(m.cfg.HedgeSlippage)
	}
	return decimal.Min(decimal.Max(p, domain.MinPrice), domain.MaxPrice)
}

func (m *Manager) order(symbol string, venue domain.Venue, outcome domain.Outcome, side domain.OrderSide, price decimal.Decimal, size int64, purpose string) domain.Order {
	return domain.Order{
		ID:      uuid.NewString(),
		Symbol:  symbol,
		Venue:   venue,
		Outcome: outcome,
		Side:    side,
		Price:   price,
		Size:    size,
		Type:    m.cfg.OrderType,
		Purpose: purpose,
	}
}

// place submits order on its venue bounded by timeout.
func (m *Manager) place(ctx context.Context, order domain.Order, timeout time.Duration) (domain.Fill, error) {
	gw := m.gateways[order.Venue]
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fill, err := gw.SubmitOrder(lctx, order)
	m.metrics.ObserveLeg(string(order.Venue), order.Purpose, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lctx.Err(), context.DeadlineExceeded) {
			return domain.Fill{}, fmt.Errorf("executor: %s on %s: %w",
				order.Purpose, order.Venue, &domain.TransientVenueError{Venue: order.Venue, Op: "submit_order", Err: context.DeadlineExceeded})
		}
		return domain.Fill{}, fmt.Errorf("executor: %s on %s: %w", order.Purpose, order.Venue, err)
	}
	if fill.Size <= 0 {
		return domain.Fill{}, fmt.Errorf("executor: %s on %s: %w", order.Purpose, order.Venue, domain.ErrOrderRejected)
	}
	if fill.Symbol == "" {
		fill.Symbol = order.Symbol
	}
	if fill.OrderID == "" {
		fill.OrderID = order.ID
	}
	fill.Venue, fill.Outcome, fill.Side = order.Venue, order.Outcome, order.Side
	return fill, nil
}

// book applies a fill to the ledger and the execution totals.
func (m *Manager) book(ctx context.Context, exec *domain.Execution, fill domain.Fill) {
	m.ledger.ApplyFill(ctx, fill)
	exec.Fees = exec.Fees.Add(fill.Fee)
}

func result(order domain.Order, fill domain.Fill, err error) domain.LegResult {
	r := domain.LegResult{Order: order}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	f := fill
	r.Fill = &f
	return r
}
