package relay

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

type top struct {
	market string
	price  int
	seq    uint64
}

func newRelay(capacity int) *Relay[top] {
	return New(domain.VenueKalshi, capacity,
		func(t top) string { return t.market },
		func(t top, seq uint64) top { t.seq = seq; return t },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, r *Relay[top]) top {
	t.Helper()
	select {
	case msg, ok := <-r.Messages():
		require.True(t, ok, "relay closed")
		assert.Equal(t, domain.VenueKalshi, msg.Venue)
		assert.NotZero(t, msg.ReceivedAt)
		return msg.Payload.(top)
	case <-time.After(time.Second):
		t.Fatal("no message")
		return top{}
	}
}

func TestRelay_NumbersPerKey(t *testing.T) {
	r := newRelay(16)
	defer r.Close()

	r.Publish(top{market: "A", price: 40})
	r.Publish(top{market: "B", price: 60})
	r.Publish(top{market: "A", price: 41})

	assert.Equal(t, top{market: "A", price: 40, seq: 1}, receive(t, r))
	assert.Equal(t, top{market: "B", price: 60, seq: 1}, receive(t, r))
	assert.Equal(t, top{market: "A", price: 41, seq: 2}, receive(t, r))
	assert.Equal(t, uint64(2), r.LastSeq("A"))
	assert.Zero(t, r.LastSeq("C"))
}

func TestRelay_MarkGapSkipsOneNumber(t *testing.T) {
	r := newRelay(16)
	defer r.Close()

	r.Publish(top{market: "A", price: 40})
	assert.Equal(t, uint64(1), receive(t, r).seq)

	r.MarkGap("A")
	r.Publish(top{market: "A", price: 45})
	r.Publish(top{market: "A", price: 46})
	assert.Equal(t, uint64(3), receive(t, r).seq)
	assert.Equal(t, uint64(4), receive(t, r).seq)
}

func TestRelay_EvictionKeepsNewestWithoutGaps(t *testing.T) {
	r := newRelay(4)
	defer r.Close()

	for p := 1; p <= 50; p++ {
		r.Publish(top{market: "A", price: p})
	}

	var got []top
	for {
		m := receive(t, r)
		got = append(got, m)
		if m.price == 50 {
			break
		}
	}
	// At most the buffer plus the update already handed to the pump.
	assert.LessOrEqual(t, len(got), 5)
	for i, m := range got {
		assert.Equal(t, uint64(i+1), m.seq, "delivered updates are numbered contiguously")
	}
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].price, got[i-1].price, "order preserved")
	}
}

func TestRelay_CloseEndsDelivery(t *testing.T) {
	r := newRelay(4)
	r.Close()
	r.Close()
	r.Publish(top{market: "A"})

	select {
	case _, ok := <-r.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("messages channel not closed")
	}
}
