package polymarket

import (
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWSClient_BookThenPriceChange(t *testing.T) {
	w := NewWSClient("ws://unused", slog.Default())
	var got []BookTop
	w.OnBook(func(b BookTop) { got = append(got, b) })

	w.handleMessage([]byte(`[{"event_type":"book","asset_id":"111","timestamp":"1700000000000",
		"bids":[{"price":"0.44","size":"50"},{"price":"0.45","size":"20"}],
		"asks":[{"price":"0.47","size":"30"},{"price":"0.48","size":"90"}]}]`))
	require.Len(t, got, 1)
	assert.True(t, got[0].Bid.Equal(d("0.45")))
	assert.True(t, got[0].Ask.Equal(d("0.47")))
	assert.Equal(t, int64(1_700_000_000_000_000_000), got[0].ExchangeTS)

	// Removing the best ask exposes the next level.
	w.handleMessage([]byte(`{"event_type":"price_change","market":"0xabc","timestamp":"1700000000100",
		"price_changes":[{"asset_id":"111","price":"0.47","size":"0","side":"SELL"},
		                 {"asset_id":"111","price":"0.46","size":"5","side":"BUY"}]}`))
	require.Len(t, got, 2)
	assert.True(t, got[1].Ask.Equal(d("0.48")))
	assert.True(t, got[1].Bid.Equal(d("0.46")))
	assert.True(t, got[1].BidSize.Equal(d("5")))
}

func TestWSClient_PriceChangeBeforeBookIgnored(t *testing.T) {
	w := NewWSClient("ws://unused", slog.Default())
	calls := 0
	w.OnBook(func(BookTop) { calls++ })

	w.handleMessage([]byte(`{"event_type":"price_change","price_changes":[{"asset_id":"222","price":"0.5","size":"1","side":"BUY"}]}`))
	w.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"222","price":"0.5"}`))
	w.handleMessage([]byte(`garbage`))
	w.handleMessage(nil)
	assert.Zero(t, calls)
}

func TestWSClient_SnapshotResentAfterReconnect(t *testing.T) {
	w := NewWSClient("ws://unused", slog.Default())
	var got []BookTop
	w.OnBook(func(b BookTop) { got = append(got, b) })

	book := []byte(`{"event_type":"book","asset_id":"111","bids":[{"price":"0.4","size":"1"}],"asks":[{"price":"0.6","size":"1"}]}`)
	w.handleMessage(book)
	w.handleMessage(book)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
}
