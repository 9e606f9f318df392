package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price bounds for binary contracts.
var (
	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.RequireFromString("0.99")
	One      = decimal.NewFromInt(1)
)

// NormalizedTick is the canonical top-of-book quote for the YES contract of a
// symbol on one venue. It is a value type; nothing mutates a tick after
// construction.
type NormalizedTick struct {
	Symbol            string          `json:"symbol"`
	Venue             Venue           `json:"venue"`
	BidPrice          decimal.Decimal `json:"bid_price"`
	AskPrice          decimal.Decimal `json:"ask_price"`
	BidSize           int64           `json:"bid_size"`
	AskSize           int64           `json:"ask_size"`
	TimestampExchange int64           `json:"timestamp_exchange"` // ns, venue-asserted
	TimestampLocal    int64           `json:"timestamp_local"`    // ns, local receipt
	Sequence          uint64          `json:"sequence"`
}

// NoAsk is the price to buy NO, implied by the YES bid.
func (t NormalizedTick) NoAsk() decimal.Decimal { return One.Sub(t.BidPrice) }

// NoAskSize is the quantity available at NoAsk.
func (t NormalizedTick) NoAskSize() int64 { return t.BidSize }

// NoBid is the price to sell NO, implied by the YES ask.
func (t NormalizedTick) NoBid() decimal.Decimal { return One.Sub(t.AskPrice) }

// Ask returns the buy price and size for outcome.
func (t NormalizedTick) Ask(o Outcome) (decimal.Decimal, int64) {
	if o == OutcomeNo {
		return t.NoAsk(), t.NoAskSize()
	}
	return t.AskPrice, t.AskSize
}

// Bid returns the sell price for outcome.
func (t NormalizedTick) Bid(o Outcome) decimal.Decimal {
	if o == OutcomeNo {
		return t.NoBid()
	}
	return t.BidPrice
}

// Mid returns the YES mid price.
func (t NormalizedTick) Mid() decimal.Decimal {
	return t.BidPrice.Add(t.AskPrice).Div(decimal.NewFromInt(2))
}

// Age returns how old the tick is relative to now.
func (t NormalizedTick) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixNano() - t.TimestampLocal)
}

// Valid reports whether prices lie inside the contract bounds and the book is
// not crossed.
func (t NormalizedTick) Valid() bool {
	if t.Symbol == "" || t.Venue == "" {
		return false
	}
	if t.BidPrice.LessThan(MinPrice) || t.AskPrice.GreaterThan(MaxPrice) {
		return false
	}
	return t.BidPrice.LessThanOrEqual(t.AskPrice)
}

// WithSequence returns a copy of t carrying seq.
func (t NormalizedTick) WithSequence(seq uint64) NormalizedTick {
	t.Sequence = seq
	return t
}

// VenueMessage is a venue-native market data message as emitted by a gateway,
// before normalization.
type VenueMessage struct {
	Venue      Venue
	Payload    any
	ReceivedAt int64 // ns
}

// Normalizer converts venue-native messages into ticks. It returns false for
// unparseable or irrelevant input.
type Normalizer interface {
	Normalize(msg VenueMessage) (NormalizedTick, bool)
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc func(VenueMessage) (NormalizedTick, bool)

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(msg VenueMessage) (NormalizedTick, bool) { return f(msg) }
