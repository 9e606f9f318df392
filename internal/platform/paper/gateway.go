// Package paper wraps a venue gateway so orders fill locally at their limit
// price while market data still comes from the venue.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// Gateway is a domain.Gateway that never sends orders to the venue.
type Gateway struct {
	domain.Gateway
	fees    domain.FeeSchedule
	latency time.Duration
	logger  *slog.Logger
}

// Wrap returns a paper gateway around g. latency delays every fill.
func Wrap(g domain.Gateway, fees domain.FeeSchedule, latency time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		Gateway: g,
		fees:    fees,
		latency: latency,
		logger:  logger.With(slog.String("component", "paper"), slog.String("venue", string(g.Venue()))),
	}
}

// SubmitOrder fills the whole order at its limit price.
func (g *Gateway) SubmitOrder(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if order.Size <= 0 || order.Price.LessThan(domain.MinPrice) || order.Price.GreaterThan(domain.MaxPrice) {
		return domain.Fill{}, fmt.Errorf("paper: %w: %s x %d", domain.ErrInvalidOrder, order.Price, order.Size)
	}
	if g.latency > 0 {
		t := time.NewTimer(g.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.Fill{}, &domain.TransientVenueError{Venue: g.Venue(), Op: "submit_order", Err: ctx.Err()}
		case <-t.C:
		}
	}

	fill := domain.Fill{
		OrderID:  order.ID,
		VenueID:  "paper-" + uuid.NewString(),
		Symbol:   order.Symbol,
		Venue:    g.Venue(),
		Outcome:  order.Outcome,
		Side:     order.Side,
		Price:    order.Price,
		Size:     order.Size,
		Fee:      g.fees.Fee(order.Price, order.Size, order.Type),
		FilledAt: time.Now().UTC(),
	}
	g.logger.InfoContext(ctx, "paper: order filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("outcome", string(order.Outcome)),
		slog.String("price", order.Price.String()),
		slog.Int64("size", order.Size),
	)
	return fill, nil
}
