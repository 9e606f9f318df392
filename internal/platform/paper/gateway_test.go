package paper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

type venueOnly struct{ domain.Gateway }

func (venueOnly) Venue() domain.Venue { return domain.VenueKalshi }

func (venueOnly) SubmitOrder(context.Context, domain.Order) (domain.Fill, error) {
	panic("live order sent in paper mode")
}

func TestPaperFillsAtLimit(t *testing.T) {
	fees := domain.FeeSchedule{Model: domain.FeeModelQuadratic, TakerFee: decimal.RequireFromString("0.07")}
	g := Wrap(venueOnly{}, fees, 0, slog.Default())

	fill, err := g.SubmitOrder(context.Background(), domain.Order{
		ID: "o-1", Symbol: "FED-DEC", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy,
		Price: decimal.RequireFromString("0.46"), Size: 10, Type: domain.OrderTypeTaker,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VenueKalshi, fill.Venue)
	assert.Equal(t, int64(10), fill.Size)
	assert.True(t, fill.Price.Equal(decimal.RequireFromString("0.46")))
	// 0.07 * 10 * 0.46 * 0.54 = 0.17388 -> 0.18
	assert.True(t, fill.Fee.Equal(decimal.RequireFromString("0.18")), fill.Fee.String())
}

func TestPaperLatencyHonorsContext(t *testing.T) {
	g := Wrap(venueOnly{}, domain.FeeSchedule{}, time.Hour, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.SubmitOrder(ctx, domain.Order{Price: decimal.RequireFromString("0.5"), Size: 1})
	assert.True(t, domain.IsTransient(err))

	_, err = g.SubmitOrder(context.Background(), domain.Order{Price: decimal.RequireFromString("1.5"), Size: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}
