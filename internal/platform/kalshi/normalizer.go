package kalshi

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Normalizer turns BookTop messages into ticks. The YES ask is implied by
// the best NO bid: buying YES at 100 − p crosses a NO bid at p.
type Normalizer struct {
	symbols *domain.SymbolMap
}

// NewNormalizer creates a Normalizer resolving tickers through symbols.
func NewNormalizer(symbols *domain.SymbolMap) *Normalizer {
	return &Normalizer{symbols: symbols}
}

// Normalize implements domain.Normalizer.
func (n *Normalizer) Normalize(msg domain.VenueMessage) (domain.NormalizedTick, bool) {
	top, ok := msg.Payload.(BookTop)
	if !ok || !top.twoSided() {
		return domain.NormalizedTick{}, false
	}
	symbol, mapped := n.symbols.Canonical(domain.VenueKalshi, top.Ticker)
	if !mapped {
		return domain.NormalizedTick{}, false
	}

	exTS := top.ExchangeTS
	if exTS == 0 {
		exTS = msg.ReceivedAt
	}
	return domain.NormalizedTick{
		Symbol:            symbol,
		Venue:             domain.VenueKalshi,
		BidPrice:          decimal.NewFromInt(top.YesBid).Div(hundred),
		AskPrice:          decimal.NewFromInt(100 - top.NoBid).Div(hundred),
		BidSize:           top.YesBidSize,
		AskSize:           top.NoBidSize,
		TimestampExchange: exTS,
		TimestampLocal:    msg.ReceivedAt,
		Sequence:          top.Seq,
	}, true
}

// cents converts a price in dollars to whole cents.
func cents(p decimal.Decimal) int64 {
	return p.Mul(hundred).Round(0).IntPart()
}
