package polymarket

import (
	"github.com/alanyoungcy/parityarb/internal/domain"
)

// Normalizer turns YES-token BookTop messages into ticks.
type Normalizer struct {
	symbols *domain.SymbolMap
}

// NewNormalizer creates a Normalizer resolving YES tokens through symbols.
func NewNormalizer(symbols *domain.SymbolMap) *Normalizer {
	return &Normalizer{symbols: symbols}
}

// Normalize implements domain.Normalizer.
func (n *Normalizer) Normalize(msg domain.VenueMessage) (domain.NormalizedTick, bool) {
	top, ok := msg.Payload.(BookTop)
	if !ok || top.empty() {
		return domain.NormalizedTick{}, false
	}
	symbol, mapped := n.symbols.Canonical(domain.VenuePolymarket, top.AssetID)
	if !mapped {
		return domain.NormalizedTick{}, false
	}

	exTS := top.ExchangeTS
	if exTS == 0 {
		exTS = msg.ReceivedAt
	}
	return domain.NormalizedTick{
		Symbol:            symbol,
		Venue:             domain.VenuePolymarket,
		BidPrice:          top.Bid,
		AskPrice:          top.Ask,
		BidSize:           top.BidSize.IntPart(),
		AskSize:           top.AskSize.IntPart(),
		TimestampExchange: exTS,
		TimestampLocal:    msg.ReceivedAt,
		Sequence:          top.Seq,
	}, true
}
