package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Checker
		code   int
		status string
	}{
		{"no dependencies", nil, http.StatusOK, "ok"},
		{
			"all healthy",
			map[string]Checker{"postgres": func(context.Context) error { return nil }},
			http.StatusOK, "ok",
		},
		{
			"one down",
			map[string]Checker{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			http.StatusServiceUnavailable, "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, testLogger)
			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decode(t, rec)["status"])
		})
	}
}

type fakeBook struct{ books map[string]domain.SymbolBook }

func (f fakeBook) Symbols() []string {
	out := make([]string, 0, len(f.books))
	for s := range f.books {
		out = append(out, s)
	}
	return out
}

func (f fakeBook) Snapshot(symbol string) (domain.SymbolBook, bool) {
	b, ok := f.books[symbol]
	return b, ok
}

type fakeEngine struct{}

func (fakeEngine) InFlight() []string { return []string{"FED-DEC"} }
func (fakeEngine) CapitalInUse() map[domain.Venue]decimal.Decimal {
	return map[domain.Venue]decimal.Decimal{domain.VenueKalshi: decimal.RequireFromString("42.5")}
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book := fakeBook{books: map[string]domain.SymbolBook{
		"FED-DEC": {
			Symbol: "FED-DEC",
			Venues: map[domain.Venue]domain.VenueBook{
				domain.VenueKalshi: {
					HasTick:      true,
					ExpectedNext: 8,
					State:        domain.BookDrifted,
					Tick: domain.NormalizedTick{
						BidPrice:       decimal.RequireFromString("0.41"),
						AskPrice:       decimal.RequireFromString("0.43"),
						TimestampLocal: now.Add(-250 * time.Millisecond).UnixNano(),
					},
				},
			},
		},
	}}
	queue := ingest.New[int]("ticks", 8, ingest.DropOldest)

	h := NewStatusHandler(
		RuntimeInfo{Mode: "trade", EnableTrading: true, PaperTrading: true, StartedAt: now.Add(-time.Minute)},
		book, fakeEngine{}, []func() ingest.Stats{queue.Stats}, nil,
	)
	h.now = func() time.Time { return now }

	st := h.Status()
	assert.Equal(t, int64(60), st.UptimeSeconds)
	require.Len(t, st.Queues, 1)
	assert.Equal(t, "ticks", st.Queues[0].Name)
	require.Len(t, st.Books, 1)
	assert.Equal(t, domain.BookDrifted, st.Books[0].State)
	vs := st.Books[0].Venues[domain.VenueKalshi]
	assert.Equal(t, "0.41", vs.Bid)
	assert.Equal(t, int64(250), vs.AgeMS)
	assert.Equal(t, []string{"FED-DEC"}, st.InFlight)
	assert.Equal(t, "42.50", st.CapitalInUse[domain.VenueKalshi])

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trade", decode(t, rec)["mode"])
}

func TestStatus_MonitorModeHasNoEngine(t *testing.T) {
	h := NewStatusHandler(RuntimeInfo{Mode: "monitor", StartedAt: time.Now()}, fakeBook{}, nil, nil, nil)
	st := h.Status()
	assert.Empty(t, st.InFlight)
	assert.Empty(t, st.CapitalInUse)
}

type fakeLedger struct{ positions []domain.Position }

func (f fakeLedger) Positions() []domain.Position { return f.positions }
func (f fakeLedger) Summary() domain.PnLSummary {
	return domain.PnLSummary{Net: decimal.RequireFromString("1.25"), Positions: len(f.positions)}
}

type fakeHistory struct {
	sum   decimal.Decimal
	err   error
	since time.Time
}

func (f *fakeHistory) SumPnL(_ context.Context, since time.Time) (decimal.Decimal, error) {
	f.since = since
	return f.sum, f.err
}

func TestListPositions_OpenFilter(t *testing.T) {
	h := NewPositionHandler(fakeLedger{positions: []domain.Position{
		{Symbol: "A", Venue: domain.VenueKalshi, Quantity: 10},
		{Symbol: "B", Venue: domain.VenuePolymarket, Quantity: 0},
	}}, nil, testLogger)

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Len(t, decode(t, rec)["positions"], 2)

	rec = httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?open=true", nil))
	assert.Len(t, decode(t, rec)["positions"], 1)
}

func TestGetPnL(t *testing.T) {
	hist := &fakeHistory{sum: decimal.RequireFromString("-3.5")}
	h := NewPositionHandler(fakeLedger{}, hist, testLogger)

	rec := httptest.NewRecorder()
	h.GetPnL(rec, httptest.NewRequest(http.MethodGet, "/api/pnl?since=2026-03-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1.25", body["net"])
	assert.Equal(t, "-3.5", body["stored"].(map[string]any)["net"])
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), hist.since.UTC())

	rec = httptest.NewRecorder()
	h.GetPnL(rec, httptest.NewRequest(http.MethodGet, "/api/pnl?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.GetPnL(rec, httptest.NewRequest(http.MethodGet, "/api/pnl?since=2026-03-01T00:00:00Z", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeHalts struct{ halted map[string]bool }

func (f *fakeHalts) Halts() []service.Halt {
	var out []service.Halt
	for s := range f.halted {
		out = append(out, service.Halt{Symbol: s, Reason: "hedge failed"})
	}
	return out
}

func (f *fakeHalts) Resume(_ context.Context, symbol string) bool {
	if !f.halted[symbol] {
		return false
	}
	delete(f.halted, symbol)
	return true
}

func TestHalts_ListAndResume(t *testing.T) {
	ctl := &fakeHalts{halted: map[string]bool{"FED-DEC": true}}
	h := NewHaltHandler(ctl)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/halts", h.ListHalts)
	mux.HandleFunc("POST /api/halts/{symbol}/resume", h.Resume)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/halts", nil))
	assert.Len(t, decode(t, rec)["halts"], 1)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/halts/FED-DEC/resume", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/halts/FED-DEC/resume", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/halts", nil))
	assert.Len(t, decode(t, rec)["halts"], 0)
}

type fakeStore struct {
	opps  []domain.ArbitrageOpportunity
	execs []domain.Execution
	limit int
}

func (f *fakeStore) ListRecentOpportunities(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	f.limit = limit
	return f.opps, nil
}

func (f *fakeStore) ListRecentExecutions(_ context.Context, limit int) ([]domain.Execution, error) {
	f.limit = limit
	return f.execs, nil
}

type fakeRecent []domain.Execution

func (f fakeRecent) Recent() []domain.Execution { return f }

func TestListExecutions_FallsBackToRecent(t *testing.T) {
	recent := fakeRecent{{ID: "e2"}, {ID: "e1"}}

	h := NewArbHandler(&fakeStore{}, recent, nil, testLogger)
	rec := httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?limit=1", nil))
	execs := decode(t, rec)["executions"].([]any)
	require.Len(t, execs, 1)
	assert.Equal(t, "e2", execs[0].(map[string]any)["id"])

	store := &fakeStore{execs: []domain.Execution{{ID: "stored"}}}
	h = NewArbHandler(store, recent, nil, testLogger)
	rec = httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?limit=9999", nil))
	execs = decode(t, rec)["executions"].([]any)
	assert.Equal(t, "stored", execs[0].(map[string]any)["id"])
	assert.Equal(t, 500, store.limit)
}

func TestListOpportunities_Empty(t *testing.T) {
	h := NewArbHandler(&fakeStore{}, nil, nil, testLogger)
	rec := httptest.NewRecorder()
	h.ListOpportunities(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["opportunities"])
}

func TestReadExecutionLog(t *testing.T) {
	bus := service.NewLocalBus()
	ctx := context.Background()
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte(`{"id":"e1"}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte(`{"id":"e2"}`)))

	h := NewArbHandler(&fakeStore{}, nil, bus, testLogger)
	rec := httptest.NewRecorder()
	h.ReadExecutionLog(rec, httptest.NewRequest(http.MethodGet, "/api/executions/log?limit=1", nil))
	body := decode(t, rec)
	require.Len(t, body["entries"], 1)
	next := body["next"].(string)

	rec = httptest.NewRecorder()
	h.ReadExecutionLog(rec, httptest.NewRequest(http.MethodGet, "/api/executions/log?after="+next, nil))
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "e2", entries[0].(map[string]any)["event"].(map[string]any)["id"])

	h = NewArbHandler(&fakeStore{}, nil, nil, testLogger)
	rec = httptest.NewRecorder()
	h.ReadExecutionLog(rec, httptest.NewRequest(http.MethodGet, "/api/executions/log", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
