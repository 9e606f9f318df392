package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/crypto"
	"github.com/alanyoungcy/parityarb/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestGateway(t *testing.T, h http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	signer, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	clob := NewClobClient(srv.URL, signer, time.Second)
	clob.SetCredentials(crypto.APICredentials{Key: "key", Secret: "c2VjcmV0", Passphrase: "pp"})

	fees := domain.FeeSchedule{Venue: domain.VenuePolymarket, Model: domain.FeeModelNotional, TakerFee: d("0.01")}
	markets := map[string]Market{"FED-DEC": {YesToken: "111", NoToken: "222"}}
	return NewGateway(clob, "ws://unused", markets, fees, 8, slog.Default())
}

func TestGateway_SubmitBuyNo(t *testing.T) {
	var got PostOrderRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"success":true,"orderID":"0xord","status":"matched","makingAmount":"5","takingAmount":"10"}`))
	})

	fill, err := g.SubmitOrder(context.Background(), domain.Order{
		ID: "o-1", Symbol: "FED-DEC", Outcome: domain.OutcomeNo, Side: domain.OrderSideBuy,
		Price: d("0.52"), Size: 10, Type: domain.OrderTypeTaker,
	})
	require.NoError(t, err)

	assert.Equal(t, "222", got.Order.TokenID)
	assert.Equal(t, "BUY", got.Order.Side)
	assert.Equal(t, "5200000", got.Order.MakerAmount)
	assert.Equal(t, "10000000", got.Order.TakerAmount)
	assert.Equal(t, "FOK", got.OrderType)
	assert.Equal(t, "key", got.Owner)

	assert.Equal(t, "0xord", fill.VenueID)
	assert.Equal(t, int64(10), fill.Size)
	assert.True(t, fill.Price.Equal(d("0.5")), fill.Price.String())
	assert.True(t, fill.Fee.Equal(d("0.05")), fill.Fee.String())
}

func TestGateway_SellAmountsAndRejection(t *testing.T) {
	var got PostOrderRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"success":false,"errorMsg":"order couldn't be fully filled"}`))
	})

	_, err := g.SubmitOrder(context.Background(), domain.Order{
		ID: "o-2", Symbol: "FED-DEC", Outcome: domain.OutcomeYes, Side: domain.OrderSideSell,
		Price: d("0.44"), Size: 3,
	})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, "111", got.Order.TokenID)
	assert.Equal(t, "SELL", got.Order.Side)
	assert.Equal(t, "3000000", got.Order.MakerAmount)
	assert.Equal(t, "1320000", got.Order.TakerAmount)
}

func TestGateway_ServerErrorIsTransient(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := g.SubmitOrder(context.Background(), domain.Order{
		ID: "o-3", Symbol: "FED-DEC", Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy,
		Price: d("0.44"), Size: 1,
	})
	assert.True(t, domain.IsTransient(err))

	_, err = g.SubmitOrder(context.Background(), domain.Order{Symbol: "NOPE", Price: d("0.5"), Size: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestGateway_RequestSnapshot(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "111", r.URL.Query().Get("token_id"))
		_, _ = w.Write([]byte(`{"asset_id":"111","bids":[{"price":"0.45","size":"12.5"}],"asks":[{"price":"0.47","size":"30"}]}`))
	})

	tick, ok, err := g.RequestSnapshot(context.Background(), "FED-DEC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FED-DEC", tick.Symbol)
	assert.True(t, tick.BidPrice.Equal(d("0.45")))
	assert.Equal(t, int64(12), tick.BidSize)
	assert.Equal(t, int64(30), tick.AskSize)
	assert.True(t, tick.Valid())
}

func TestDeriveAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		_, _ = w.Write([]byte(`{"apiKey":"k","secret":"c2VjcmV0","passphrase":"p"}`))
	}))
	defer srv.Close()

	signer, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	clob := NewClobClient(srv.URL, signer, time.Second)
	assert.False(t, clob.HasCredentials())

	creds, err := clob.DeriveAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", creds.Key)
	assert.True(t, clob.HasCredentials())
}

func TestGateway_NumbersForwardedTops(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"asset_id":"111","bids":[{"price":"0.45","size":"10"}],"asks":[{"price":"0.47","size":"10"}]}`))
	})
	defer g.Close()

	quoted := BookTop{AssetID: "111", Bid: d("0.45"), BidSize: d("10"), Ask: d("0.47"), AskSize: d("10")}
	g.emit(quoted)
	g.emit(BookTop{AssetID: "111", Bid: d("0.45"), BidSize: d("10")}) // asks emptied
	g.emit(quoted)

	norm := NewNormalizer(g.Symbols())
	for _, want := range []uint64{1, 2} {
		select {
		case msg := <-g.Messages():
			tick, ok := norm.Normalize(msg)
			require.True(t, ok)
			assert.Equal(t, want, tick.Sequence)
		case <-time.After(time.Second):
			t.Fatal("no message")
		}
	}

	snap, ok, err := g.RequestSnapshot(context.Background(), "FED-DEC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), snap.Sequence)
}
