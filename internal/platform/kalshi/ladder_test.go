package kalshi

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLevel_ArrayForm(t *testing.T) {
	var ob Orderbook
	require.NoError(t, json.Unmarshal([]byte(`{"yes":[[40,100],[42,5]],"no":[[55,30]]}`), &ob))
	require.Len(t, ob.Yes, 2)
	assert.Equal(t, PriceLevel{Price: 42, Quantity: 5}, ob.Yes[1])

	var bad PriceLevel
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &bad))
}

func TestLadder_DeltaRemovesLevel(t *testing.T) {
	l := newLadder()
	l.reset([]PriceLevel{{40, 100}, {42, 5}}, []PriceLevel{{55, 30}})

	top := l.top("T")
	assert.Equal(t, int64(42), top.YesBid)
	assert.Equal(t, int64(5), top.YesBidSize)
	assert.Equal(t, int64(55), top.NoBid)

	l.apply("yes", 42, -5)
	top = l.top("T")
	assert.Equal(t, int64(40), top.YesBid)
	assert.Equal(t, int64(100), top.YesBidSize)

	l.apply("no", 57, 10)
	assert.Equal(t, int64(57), l.top("T").NoBid)
}

func frame(t *testing.T, typ string, seq uint64, msg any) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	out, err := json.Marshal(WSEnvelope{Type: typ, SID: 1, Seq: seq, Msg: raw})
	require.NoError(t, err)
	return out
}

func TestWSClient_FlagsVenueGaps(t *testing.T) {
	w := NewWSClient("ws://unused", nil, slog.Default())
	var got []BookTop
	w.OnBook(func(b BookTop) { got = append(got, b) })

	w.handleMessage(frame(t, "orderbook_snapshot", 1, WSSnapshot{
		MarketTicker: "KX-A",
		Yes:          []PriceLevel{{40, 10}},
		No:           []PriceLevel{{58, 10}},
	}))
	w.handleMessage(frame(t, "orderbook_delta", 2, WSDelta{MarketTicker: "KX-A", Side: "yes", Price: 41, Delta: 3}))
	require.Len(t, got, 2)
	assert.Equal(t, int64(41), got[1].YesBid)
	assert.False(t, got[1].Gap)
	assert.Zero(t, got[1].Seq, "numbering belongs to the gateway")

	// seq 3 never arrived
	w.handleMessage(frame(t, "orderbook_delta", 4, WSDelta{MarketTicker: "KX-A", Side: "yes", Price: 42, Delta: 1}))
	require.Len(t, got, 3)
	assert.True(t, got[2].Gap)

	// A new subscription restarts the venue counter at 1 with a snapshot.
	w.resetSeqs()
	w.handleMessage(frame(t, "orderbook_snapshot", 1, WSSnapshot{
		MarketTicker: "KX-A",
		Yes:          []PriceLevel{{39, 10}},
		No:           []PriceLevel{{59, 4}},
	}))
	w.handleMessage(frame(t, "orderbook_delta", 2, WSDelta{MarketTicker: "KX-A", Side: "no", Price: 59, Delta: 1}))
	require.Len(t, got, 5)
	assert.False(t, got[3].Gap)
	assert.False(t, got[4].Gap)
	assert.Equal(t, int64(39), got[3].YesBid)
	assert.Equal(t, int64(5), got[4].NoBidSize)
}

func TestWSClient_IgnoresOtherFrames(t *testing.T) {
	w := NewWSClient("ws://unused", nil, slog.Default())
	calls := 0
	w.OnBook(func(BookTop) { calls++ })

	w.handleMessage([]byte(`{"type":"subscribed","id":1,"msg":{"channel":"orderbook_delta","sid":1}}`))
	w.handleMessage([]byte(`not json`))
	w.handleMessage(frame(t, "orderbook_delta", 1, WSDelta{Side: "yes", Price: 40, Delta: 1}))
	assert.Zero(t, calls)
}
