package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(venue domain.Venue, outcome domain.Outcome, side domain.OrderSide, price string, size int64, fee string) domain.Fill {
	return domain.Fill{
		Symbol:  "FED-DEC",
		Venue:   venue,
		Outcome: outcome,
		Side:    side,
		Price:   dec(price),
		Size:    size,
		Fee:     dec(fee),
	}
}

func TestAverageCostAndRealized(t *testing.T) {
	ledger := NewPositionService(nil, discardLogger())
	ctx := context.Background()

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.40", 10, "0.01"))
	pos := ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.50", 10, "0.01"))
	assert.Equal(t, int64(20), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(dec("0.45")), "avg %s", pos.AvgEntryPrice)

	pos = ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideSell, "0.55", 5, "0"))
	assert.Equal(t, int64(15), pos.Quantity)
	assert.True(t, pos.RealizedPnL.Equal(dec("0.5")), "realized %s", pos.RealizedPnL)
	assert.True(t, pos.AvgEntryPrice.Equal(dec("0.45")))
	assert.True(t, pos.FeesPaid.Equal(dec("0.02")))
}

func TestNoFillIsShortYes(t *testing.T) {
	ledger := NewPositionService(nil, discardLogger())
	ctx := context.Background()

	pos := ledger.ApplyFill(ctx, fill(domain.VenuePolymarket, domain.OutcomeNo, domain.OrderSideBuy, "0.50", 10, "0"))
	assert.Equal(t, int64(-10), pos.Quantity)
	assert.True(t, pos.AvgEntryPrice.Equal(dec("0.5")))

	// sell the NO back at 0.45: buy YES at 0.55, a 0.05 loss per contract
	pos = ledger.ApplyFill(ctx, fill(domain.VenuePolymarket, domain.OutcomeNo, domain.OrderSideSell, "0.45", 10, "0"))
	assert.True(t, pos.Flat())
	assert.True(t, pos.RealizedPnL.Equal(dec("-0.5")), "realized %s", pos.RealizedPnL)
	assert.True(t, pos.AvgEntryPrice.IsZero())
}

func TestFlipThroughZero(t *testing.T) {
	ledger := NewPositionService(nil, discardLogger())
	ctx := context.Background()

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.40", 5, "0"))
	pos := ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideSell, "0.50", 8, "0"))
	assert.Equal(t, int64(-3), pos.Quantity)
	assert.True(t, pos.RealizedPnL.Equal(dec("0.5")))
	assert.True(t, pos.AvgEntryPrice.Equal(dec("0.5")))
}

type staticQuotes map[domain.Venue]domain.NormalizedTick

func (q staticQuotes) Latest(_ string, v domain.Venue) (domain.NormalizedTick, bool) {
	t, ok := q[v]
	return t, ok
}

func TestMarkAllAndSummary(t *testing.T) {
	ledger := NewPositionService(nil, discardLogger())
	ctx := context.Background()

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.46", 10, "0.10"))
	ledger.ApplyFill(ctx, fill(domain.VenuePolymarket, domain.OutcomeNo, domain.OrderSideBuy, "0.50", 10, "0.10"))

	n := ledger.MarkAll(staticQuotes{
		domain.VenueKalshi:     {BidPrice: dec("0.50"), AskPrice: dec("0.52")},
		domain.VenuePolymarket: {BidPrice: dec("0.50"), AskPrice: dec("0.52")},
	})
	assert.Equal(t, 2, n)

	sum := ledger.Summary()
	// kalshi long 10 @0.46 marked 0.51 = +0.5; polymarket short 10 @0.50 marked 0.51 = -0.1
	assert.True(t, sum.Unrealized.Equal(dec("0.4")), "unrealized %s", sum.Unrealized)
	assert.True(t, sum.Fees.Equal(dec("0.2")))
	assert.True(t, sum.Net.Equal(dec("0.2")))
	assert.Equal(t, 2, sum.Open)
	assert.True(t, sum.ByVenue[domain.VenueKalshi].Equal(dec("0.4")))
}

func TestDayPnLRollsAtMidnight(t *testing.T) {
	ledger := NewPositionService(nil, discardLogger())
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	ledger.SetClock(func() time.Time { return now })
	ctx := context.Background()

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.50", 10, "0.05"))
	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideSell, "0.40", 10, "0.05"))
	assert.True(t, ledger.DayPnL().Equal(dec("-1.1")), "day %s", ledger.DayPnL())

	now = now.Add(2 * time.Hour)
	assert.True(t, ledger.DayPnL().IsZero())
}

func TestRiskAdmission(t *testing.T) {
	ctx := context.Background()
	ledger := NewPositionService(nil, discardLogger())
	opp := domain.ArbitrageOpportunity{
		Symbol: "FED-DEC",
		Legs: [2]domain.Leg{
			{Venue: domain.VenueKalshi, Outcome: domain.OutcomeYes, Size: 10},
			{Venue: domain.VenuePolymarket, Outcome: domain.OutcomeNo, Size: 10},
		},
	}

	off := NewRiskService(RiskConfig{}, ledger, nil, discardLogger())
	assert.ErrorIs(t, off.Admit(ctx, opp), domain.ErrTradingDisabled)

	risk := NewRiskService(RiskConfig{
		EnableTrading:        true,
		MaxPositionPerSymbol: 15,
		MaxDailyLoss:         dec("1"),
	}, ledger, nil, discardLogger())
	require.NoError(t, risk.Admit(ctx, opp))

	risk.Halt("FED-DEC", "hedge failed")
	assert.ErrorIs(t, risk.Admit(ctx, opp), domain.ErrSymbolHalted)
	assert.Len(t, risk.Halts(), 1)
	assert.True(t, risk.Resume("FED-DEC"))
	assert.False(t, risk.Resume("FED-DEC"))

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideBuy, "0.50", 10, "0"))
	var breach *domain.RiskLimitBreach
	require.ErrorAs(t, risk.Admit(ctx, opp), &breach)
	assert.Equal(t, "max_position_per_symbol", breach.Limit)

	ledger.ApplyFill(ctx, fill(domain.VenueKalshi, domain.OutcomeYes, domain.OrderSideSell, "0.39", 10, "0"))
	require.ErrorAs(t, risk.Admit(ctx, opp), &breach)
	assert.Equal(t, "max_daily_loss", breach.Limit)
}
