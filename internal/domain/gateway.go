package domain

import "context"

// Gateway is the per-venue collaborator the engine trades through. Every
// venue is handled through this contract; the Venue value identifies it.
type Gateway interface {
	Venue() Venue
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	// RequestSnapshot returns an authoritative tick for symbol, or false when
	// the venue has no book for it.
	RequestSnapshot(ctx context.Context, symbol string) (NormalizedTick, bool, error)
	// SubmitOrder blocks until the order is filled or has definitively
	// failed. Unfilled orders are reported as errors.
	SubmitOrder(ctx context.Context, order Order) (Fill, error)
	// Messages streams venue-native market data for the subscribed symbols.
	Messages() <-chan VenueMessage
	Close() error
}

// QuoteSource exposes the latest stored tick per symbol and venue,
// regardless of freshness.
type QuoteSource interface {
	Latest(symbol string, venue Venue) (NormalizedTick, bool)
}
