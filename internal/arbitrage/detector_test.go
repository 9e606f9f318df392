package arbitrage

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

var evalTime = time.Unix(1_700_000_000, 0)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func perContract(venue domain.Venue, fee string) domain.FeeSchedule {
	return domain.FeeSchedule{
		Venue:           venue,
		Model:           domain.FeeModelNotional,
		PerContractFee:  d(fee),
		SettlementModel: domain.SettlementNone,
	}
}

func newDetector(t *testing.T, feeA, feeB string, mutate ...func(*Config)) *Detector {
	t.Helper()
	cfg := Config{
		Primary:   domain.VenueKalshi,
		Secondary: domain.VenuePolymarket,
		Fees: map[domain.Venue]domain.FeeSchedule{
			domain.VenueKalshi:     perContract(domain.VenueKalshi, feeA),
			domain.VenuePolymarket: perContract(domain.VenuePolymarket, feeB),
		},
		TradeSize:  10,
		MinEdgeBps: d("100"),
		MaxAge:     500 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	det, err := NewDetector(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return evalTime }))
	require.NoError(t, err)
	return det
}

func quote(venue domain.Venue, bid, ask string, age time.Duration) domain.NormalizedTick {
	return domain.NormalizedTick{
		Symbol:         "FED-DEC",
		Venue:          venue,
		BidPrice:       d(bid),
		AskPrice:       d(ask),
		BidSize:        50,
		AskSize:        50,
		TimestampLocal: evalTime.Add(-age).UnixNano(),
		Sequence:       1,
	}
}

func book(ticks ...domain.NormalizedTick) domain.SymbolBook {
	b := domain.SymbolBook{Symbol: "FED-DEC", Venues: map[domain.Venue]domain.VenueBook{}}
	for _, t := range ticks {
		b.Venues[t.Venue] = domain.VenueBook{Tick: t, HasTick: true, ExpectedNext: t.Sequence + 1, State: domain.BookSynced}
	}
	return b
}

// YES ask 0.46 on kalshi, NO ask 0.50 on polymarket (YES bid 0.50).
func crossingBook(age time.Duration) domain.SymbolBook {
	return book(
		quote(domain.VenueKalshi, "0.40", "0.46", age),
		quote(domain.VenuePolymarket, "0.50", "0.52", age),
	)
}

func TestFeesSumTooHighNoSignal(t *testing.T) {
	det := newDetector(t, "0.025", "0.025")
	_, ok := det.Evaluate(crossingBook(10 * time.Millisecond))
	assert.False(t, ok, "net edge 1.00 - 0.96 - 0.05 = -0.01")
}

func TestLowerFeesEmitSignal(t *testing.T) {
	det := newDetector(t, "0.01", "0.01")
	opp, ok := det.Evaluate(crossingBook(10 * time.Millisecond))
	require.True(t, ok)

	assert.True(t, opp.GrossEdge.Equal(d("0.04")))
	assert.True(t, opp.NetEdge.Equal(d("0.02")), "got %s", opp.NetEdge)
	assert.True(t, opp.TotalFees.Equal(d("0.2")))
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, evalTime.UnixNano(), opp.DetectedAt)

	leg1, leg2 := opp.Legs[0], opp.Legs[1]
	assert.Equal(t, domain.VenueKalshi, leg1.Venue)
	assert.Equal(t, domain.OutcomeYes, leg1.Outcome)
	assert.True(t, leg1.Price.Equal(d("0.46")))
	assert.Equal(t, domain.VenuePolymarket, leg2.Venue)
	assert.Equal(t, domain.OutcomeNo, leg2.Outcome)
	assert.True(t, leg2.Price.Equal(d("0.50")))
	assert.Equal(t, int64(10), opp.Size())
}

func TestMinimumEdgeGate(t *testing.T) {
	// 300 bps of 0.96 = 0.0288 > 0.02
	det := newDetector(t, "0.01", "0.01", func(c *Config) { c.MinEdgeBps = d("300") })
	_, ok := det.Evaluate(crossingBook(10 * time.Millisecond))
	assert.False(t, ok)
}

func TestZeroEdgeAdmittedWithoutMinimum(t *testing.T) {
	// 1.00 - 0.96 - 0.02 - 0.02 = 0
	det := newDetector(t, "0.02", "0.02", func(c *Config) { c.MinEdgeBps = decimal.Zero })
	opp, ok := det.Evaluate(crossingBook(10 * time.Millisecond))
	require.True(t, ok)
	assert.True(t, opp.NetEdge.IsZero(), "got %s", opp.NetEdge)

	// Any positive minimum excludes it.
	det = newDetector(t, "0.02", "0.02", func(c *Config) { c.MinEdgeBps = d("1") })
	_, ok = det.Evaluate(crossingBook(10 * time.Millisecond))
	assert.False(t, ok)
}

func TestStaleTickSuppressesSignal(t *testing.T) {
	det := newDetector(t, "0", "0")

	fresh := quote(domain.VenueKalshi, "0.28", "0.30", 10*time.Millisecond)
	stale := quote(domain.VenuePolymarket, "0.50", "0.52", 600*time.Millisecond)
	_, ok := det.Evaluate(book(fresh, stale))
	assert.False(t, ok, "600ms old tick against 500ms threshold")

	_, ok = det.Evaluate(book(fresh, quote(domain.VenuePolymarket, "0.50", "0.52", 100*time.Millisecond)))
	assert.True(t, ok)
}

func TestMissingVenueIsSilent(t *testing.T) {
	det := newDetector(t, "0", "0")
	_, ok := det.Evaluate(book(quote(domain.VenueKalshi, "0.28", "0.30", 0)))
	assert.False(t, ok)
}

func TestInsufficientSizeIsSilent(t *testing.T) {
	det := newDetector(t, "0", "0", func(c *Config) { c.TradeSize = 80 })
	_, ok := det.Evaluate(crossingBook(0))
	assert.False(t, ok)
}

func TestNoOnPrimaryDirection(t *testing.T) {
	det := newDetector(t, "0", "0")
	// YES kalshi + NO polymarket: 0.48 + (1 - 0.43) = 1.05
	// NO kalshi + YES polymarket: (1 - 0.47) + 0.44 = 0.97
	opp, ok := det.Evaluate(book(
		quote(domain.VenueKalshi, "0.47", "0.48", 0),
		quote(domain.VenuePolymarket, "0.43", "0.44", 0),
	))
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeNo, opp.Legs[0].Outcome)
	assert.True(t, opp.Legs[0].Price.Equal(d("0.53")))
	assert.Equal(t, domain.OutcomeYes, opp.Legs[1].Outcome)
	assert.True(t, opp.GrossEdge.Equal(d("0.03")), "got %s", opp.GrossEdge)
}

func TestSettlementChargesWorseLeg(t *testing.T) {
	det := newDetector(t, "0", "0", func(c *Config) {
		fs := c.Fees[domain.VenuePolymarket]
		fs.SettlementModel = domain.SettlementProfit
		fs.SettlementFee = d("0.02")
		c.Fees[domain.VenuePolymarket] = fs
	})
	opp, ok := det.Evaluate(crossingBook(0))
	require.True(t, ok)
	// 0.02 × (1 − 0.50) × 10
	assert.True(t, opp.SettlementFees.Equal(d("0.1")))
	assert.True(t, opp.NetEdge.Equal(d("0.03")), "got %s", opp.NetEdge)
}

func TestListenerInvokesHandlers(t *testing.T) {
	det := newDetector(t, "0", "0")
	var got []domain.ArbitrageOpportunity
	l := det.Listener(func(_ context.Context, o domain.ArbitrageOpportunity) { got = append(got, o) })

	l(context.Background(), crossingBook(0))
	l(context.Background(), book())
	require.Len(t, got, 1)
	assert.Equal(t, "FED-DEC", got[0].Symbol)
}

func TestNewDetectorValidates(t *testing.T) {
	_, err := NewDetector(Config{Primary: domain.VenueKalshi, Secondary: domain.VenueKalshi},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
