package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
)

// BookView is the read side of the order book.
type BookView interface {
	Symbols() []string
	Snapshot(symbol string) (domain.SymbolBook, bool)
}

// EngineView is the read side of the execution engine. It is nil in
// monitor mode.
type EngineView interface {
	InFlight() []string
	CapitalInUse() map[domain.Venue]decimal.Decimal
}

// RuntimeInfo describes how the process was started.
type RuntimeInfo struct {
	Mode          string    `json:"mode"`
	EnableTrading bool      `json:"enable_trading"`
	PaperTrading  bool      `json:"paper_trading"`
	StartedAt     time.Time `json:"started_at"`
}

// Status is the body of GET /api/status.
type Status struct {
	RuntimeInfo
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Queues        []ingest.Stats          `json:"queues"`
	Books         []BookStatus            `json:"books"`
	InFlight      []string                `json:"in_flight"`
	CapitalInUse  map[domain.Venue]string `json:"capital_in_use"`
	Counters      map[string]any          `json:"counters,omitempty"`
}

// BookStatus summarizes one symbol of the order book.
type BookStatus struct {
	Symbol           string                       `json:"symbol"`
	State            domain.BookState             `json:"state"`
	LastReconciledAt *time.Time                   `json:"last_reconciled_at,omitempty"`
	Venues           map[domain.Venue]VenueStatus `json:"venues"`
}

// VenueStatus is the per-venue part of a BookStatus.
type VenueStatus struct {
	State        domain.BookState `json:"state"`
	ExpectedNext uint64           `json:"expected_next"`
	Bid          string           `json:"bid,omitempty"`
	Ask          string           `json:"ask,omitempty"`
	AgeMS        int64            `json:"age_ms,omitempty"`
}

// StatusHandler reports what the engine is doing.
type StatusHandler struct {
	info     RuntimeInfo
	book     BookView
	engine   EngineView
	queues   []func() ingest.Stats
	counters func() map[string]any
	now      func() time.Time
}

// NewStatusHandler creates a StatusHandler. engine and counters may be nil.
func NewStatusHandler(info RuntimeInfo, book BookView, engine EngineView, queues []func() ingest.Stats, counters func() map[string]any) *StatusHandler {
	return &StatusHandler{
		info:     info,
		book:     book,
		engine:   engine,
		queues:   queues,
		counters: counters,
		now:      time.Now,
	}
}

// Status assembles the current status. The WebSocket hub sends the same
// document to new clients.
func (h *StatusHandler) Status() Status {
	now := h.now()
	st := Status{
		RuntimeInfo:   h.info,
		UptimeSeconds: max(int64(now.Sub(h.info.StartedAt).Seconds()), 0),
		Queues:        make([]ingest.Stats, 0, len(h.queues)),
		Books:         []BookStatus{},
		InFlight:      []string{},
		CapitalInUse:  map[domain.Venue]string{},
	}
	for _, q := range h.queues {
		st.Queues = append(st.Queues, q())
	}

	if h.book != nil {
		for _, sym := range h.book.Symbols() {
			sb, ok := h.book.Snapshot(sym)
			if !ok {
				continue
			}
			st.Books = append(st.Books, bookStatus(sb, now))
		}
	}

	if h.engine != nil {
		st.InFlight = append(st.InFlight, h.engine.InFlight()...)
		for v, amt := range h.engine.CapitalInUse() {
			st.CapitalInUse[v] = amt.StringFixed(2)
		}
	}
	if h.counters != nil {
		st.Counters = h.counters()
	}
	return st
}

func bookStatus(sb domain.SymbolBook, now time.Time) BookStatus {
	bs := BookStatus{
		Symbol: sb.Symbol,
		State:  sb.State(),
		Venues: make(map[domain.Venue]VenueStatus, len(sb.Venues)),
	}
	if !sb.LastReconciledAt.IsZero() {
		t := sb.LastReconciledAt
		bs.LastReconciledAt = &t
	}
	for v, vb := range sb.Venues {
		vs := VenueStatus{State: vb.State, ExpectedNext: vb.ExpectedNext}
		if vb.HasTick {
			vs.Bid = vb.Tick.BidPrice.String()
			vs.Ask = vb.Tick.AskPrice.String()
			vs.AgeMS = vb.Tick.Age(now).Milliseconds()
		}
		bs.Venues[v] = vs
	}
	return bs
}

// GetStatus responds with the current status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status())
}
