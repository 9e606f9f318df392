package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/config"
	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/platform/kalshi"
	"github.com/alanyoungcy/parityarb/internal/platform/paper"
	"github.com/alanyoungcy/parityarb/internal/platform/polymarket"
	"github.com/alanyoungcy/parityarb/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Well-known throwaway key from the go-ethereum docs.
const testWalletKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Markets = []config.MarketConfig{
		{Symbol: "FED-CUT-DEC", KalshiTicker: "KXFEDDECISION-25DEC-C25", PolymarketTokenID: "7101", PolymarketNoTokenID: "7102"},
		{Symbol: "CPI-ABOVE-3", KalshiTicker: "KXCPI-25NOV-T3.0", PolymarketTokenID: "8201", PolymarketNoTokenID: "8202"},
	}
	return cfg
}

func TestBuildVenues_PaperUnlessLive(t *testing.T) {
	cfg := testConfig()

	venues, err := buildVenues(&cfg, nil, testLogger)
	require.NoError(t, err)
	require.Len(t, venues, 2)

	for name, v := range venues {
		assert.IsType(t, &paper.Gateway{}, v.gateway, name)
		assert.Equal(t, name, v.gateway.Venue())
		assert.Equal(t, []string{"FED-CUT-DEC", "CPI-ABOVE-3"}, v.symbols)
		assert.NotNil(t, v.normalizer)
	}
}

func TestBuildVenues_LiveUsesVenueGateways(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	kalshiPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})

	cfg := testConfig()
	cfg.Mode = ModeTrade
	cfg.Risk.EnableTrading = true
	cfg.Risk.PaperTrading = false
	cfg.Venues.Kalshi.APIKeyID = "key-id"
	cfg.Venues.Kalshi.PrivateKey = string(kalshiPEM)
	cfg.Venues.Polymarket.PrivateKey = testWalletKey
	require.True(t, cfg.LiveTrading())

	venues, err := buildVenues(&cfg, nil, testLogger)
	require.NoError(t, err)
	assert.IsType(t, &kalshi.Gateway{}, venues[domain.VenueKalshi].gateway)
	assert.IsType(t, &polymarket.Gateway{}, venues[domain.VenuePolymarket].gateway)
}

func TestBuildVenues_BadKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Venues.Kalshi.PrivateKey = "not a pem"
	_, err := buildVenues(&cfg, nil, testLogger)
	assert.ErrorContains(t, err, "kalshi")

	cfg = testConfig()
	cfg.Venues.Polymarket.PrivateKey = "zz"
	_, err = buildVenues(&cfg, nil, testLogger)
	assert.ErrorContains(t, err, "polymarket")
}

type fakeExecutions struct {
	domain.ExecutionStore
	since time.Time
	pnl   decimal.Decimal
	err   error
}

func (f *fakeExecutions) SumPnL(_ context.Context, since time.Time) (decimal.Decimal, error) {
	f.since = since
	return f.pnl, f.err
}

type fakePositions struct {
	domain.PositionStore
	latest []domain.Position
}

func (f *fakePositions) Latest(context.Context) ([]domain.Position, error) { return f.latest, nil }

func TestRestoreLedger(t *testing.T) {
	cfg := testConfig()
	a := New(&cfg, testLogger)

	execs := &fakeExecutions{pnl: decimal.RequireFromString("-12.50")}
	positions := &fakePositions{latest: []domain.Position{
		{Symbol: "FED-CUT-DEC", Venue: domain.VenueKalshi, Quantity: 10, AvgEntryPrice: decimal.RequireFromString("0.46")},
		{Symbol: "FED-CUT-DEC", Venue: domain.VenuePolymarket, Quantity: -10, AvgEntryPrice: decimal.RequireFromString("0.50")},
	}}
	deps := &Dependencies{ExecutionStore: execs, PositionStore: positions}
	c := &core{
		arb:    service.NewArbService(nil, execs, positions, nil, nil, testLogger),
		ledger: service.NewPositionService(nil, testLogger),
	}

	require.NoError(t, a.restoreLedger(context.Background(), deps, c))

	sum := c.ledger.Summary()
	assert.Equal(t, 2, sum.Positions)
	assert.Equal(t, 2, sum.Open)
	assert.True(t, sum.DayRealized.Equal(decimal.RequireFromString("-12.50")), sum.DayRealized.String())

	assert.Equal(t, time.UTC, execs.since.Location())
	assert.Zero(t, execs.since.Hour())
	assert.Zero(t, execs.since.Minute())
}

func TestRestoreLedger_StoreError(t *testing.T) {
	cfg := testConfig()
	a := New(&cfg, testLogger)

	execs := &fakeExecutions{err: errors.New("connection refused")}
	deps := &Dependencies{ExecutionStore: execs}
	c := &core{
		arb:    service.NewArbService(nil, execs, nil, nil, nil, testLogger),
		ledger: service.NewPositionService(nil, testLogger),
	}

	err := a.restoreLedger(context.Background(), deps, c)
	assert.ErrorContains(t, err, "day pnl")
}

func TestRestoreLedger_NoStores(t *testing.T) {
	cfg := testConfig()
	a := New(&cfg, testLogger)
	c := &core{
		arb:    service.NewArbService(nil, nil, nil, nil, nil, testLogger),
		ledger: service.NewPositionService(nil, testLogger),
	}

	require.NoError(t, a.restoreLedger(context.Background(), &Dependencies{}, c))
	assert.Zero(t, c.ledger.Summary().Positions)
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "backtest"
	a := New(&cfg, testLogger)
	defer a.Close()

	err := a.Run(context.Background())
	assert.ErrorContains(t, err, `unsupported mode "backtest"`)
}
