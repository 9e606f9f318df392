package kalshi

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

func testSymbols() *domain.SymbolMap {
	m := domain.NewSymbolMap()
	m.Add(domain.VenueKalshi, "FED-DEC", "KXFED-25DEC")
	return m
}

func TestNormalizer_ImpliedAsk(t *testing.T) {
	n := NewNormalizer(testSymbols())
	tick, ok := n.Normalize(domain.VenueMessage{
		Venue:      domain.VenueKalshi,
		ReceivedAt: 1_000,
		Payload: BookTop{
			Ticker: "KXFED-25DEC", YesBid: 45, YesBidSize: 120,
			NoBid: 53, NoBidSize: 80, Seq: 7,
		},
	})
	require.True(t, ok)
	assert.Equal(t, "FED-DEC", tick.Symbol)
	assert.True(t, tick.BidPrice.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, tick.AskPrice.Equal(decimal.RequireFromString("0.47")))
	assert.Equal(t, int64(120), tick.BidSize)
	assert.Equal(t, int64(80), tick.AskSize)
	assert.Equal(t, uint64(7), tick.Sequence)
	assert.Equal(t, int64(1_000), tick.TimestampExchange)
	assert.True(t, tick.Valid())
}

func TestNormalizer_Rejects(t *testing.T) {
	n := NewNormalizer(testSymbols())
	cases := map[string]any{
		"unmapped":   BookTop{Ticker: "OTHER", YesBid: 45, NoBid: 53},
		"empty side": BookTop{Ticker: "KXFED-25DEC", YesBid: 45},
		"wrong type": "hello",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := n.Normalize(domain.VenueMessage{Venue: domain.VenueKalshi, Payload: payload})
			assert.False(t, ok)
		})
	}
}
