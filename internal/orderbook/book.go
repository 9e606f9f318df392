// Package orderbook keeps the latest quote per venue for every symbol and
// tracks per-venue sequence continuity.
package orderbook

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

// ApplyResult tells the caller what Apply did with a tick.
type ApplyResult int

const (
	// Applied: the tick continued the sequence.
	Applied ApplyResult = iota
	// AppliedGap: the tick skipped ahead; it was applied and the venue drifted.
	AppliedGap
	// Discarded: stale or duplicate sequence, no state change.
	Discarded
	// Invalid: the tick failed validation, no state change.
	Invalid
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case AppliedGap:
		return "applied_gap"
	case Discarded:
		return "discarded"
	default:
		return "invalid"
	}
}

// Listener is invoked synchronously after every successful apply.
type Listener func(ctx context.Context, book domain.SymbolBook)

type venueState struct {
	tick         domain.NormalizedTick
	hasTick      bool
	expectedNext uint64
	drifted      bool
}

type symbolState struct {
	venues         map[domain.Venue]*venueState
	lastReconciled time.Time
}

// Book owns every SymbolBook. Apply is expected to be driven by a single
// dispatcher; the mutex makes reconciliation and readers safe alongside it.
type Book struct {
	mu       sync.RWMutex
	symbols  map[string]*symbolState
	listener Listener
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Book.
type Option func(*Book)

// WithClock overrides the wall clock used for reconciliation timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Book) { b.metrics = m }
}

// New creates an empty Book.
func New(logger *slog.Logger, opts ...Option) *Book {
	b := &Book{
		symbols: make(map[string]*symbolState),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "orderbook")),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// OnUpdate registers the listener called after each successful apply.
func (b *Book) OnUpdate(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

// Apply folds tick into the symbol's book following the sequence rules:
// equal to expected advances, ahead of expected applies and drifts, behind
// expected is discarded. The first tick for a venue seeds the sequence.
func (b *Book) Apply(ctx context.Context, tick domain.NormalizedTick) ApplyResult {
	if !tick.Valid() {
		return Invalid
	}

	b.mu.Lock()
	vs := b.venueLocked(tick.Symbol, tick.Venue)

	result := Applied
	switch {
	case !vs.hasTick && vs.expectedNext == 0:
		// first observation seeds the counter
	case tick.Sequence < vs.expectedNext:
		b.mu.Unlock()
		b.metrics.TickDiscarded(string(tick.Venue))
		return Discarded
	case tick.Sequence > vs.expectedNext:
		result = AppliedGap
		if !vs.drifted {
			b.logger.WarnContext(ctx, "orderbook: sequence gap, venue drifted",
				slog.String("symbol", tick.Symbol),
				slog.String("venue", string(tick.Venue)),
				slog.Uint64("expected", vs.expectedNext),
				slog.Uint64("got", tick.Sequence),
			)
		}
		vs.drifted = true
	}

	vs.tick = tick
	vs.hasTick = true
	vs.expectedNext = tick.Sequence + 1

	snap := b.snapshotLocked(tick.Symbol)
	listener := b.listener
	b.mu.Unlock()

	b.metrics.TickApplied(string(tick.Venue), result == AppliedGap)
	if listener != nil {
		listener(ctx, snap)
	}
	return result
}

// Reconcile replaces the venue's tick and sequence expectation with an
// authoritative snapshot and clears its drift.
func (b *Book) Reconcile(snapshot domain.NormalizedTick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venueLocked(snapshot.Symbol, snapshot.Venue)
	vs.tick = snapshot
	vs.hasTick = true
	vs.expectedNext = snapshot.Sequence + 1
	vs.drifted = false
	b.symbols[snapshot.Symbol].lastReconciled = b.now()
}

// Snapshot returns a copy of the symbol's book.
func (b *Book) Snapshot(symbol string) (domain.SymbolBook, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.symbols[symbol]; !ok {
		return domain.SymbolBook{}, false
	}
	return b.snapshotLocked(symbol), true
}

// Latest returns the stored tick for symbol on venue regardless of age.
func (b *Book) Latest(symbol string, venue domain.Venue) (domain.NormalizedTick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ss, ok := b.symbols[symbol]
	if !ok {
		return domain.NormalizedTick{}, false
	}
	vs, ok := ss.venues[venue]
	if !ok || !vs.hasTick {
		return domain.NormalizedTick{}, false
	}
	return vs.tick, true
}

// Symbols lists every symbol with state, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Track creates empty state for symbol so it shows up before its first tick.
func (b *Book) Track(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.symbols[symbol]; !ok {
		b.symbols[symbol] = &symbolState{venues: make(map[domain.Venue]*venueState)}
	}
}

func (b *Book) venueLocked(symbol string, venue domain.Venue) *venueState {
	ss, ok := b.symbols[symbol]
	if !ok {
		ss = &symbolState{venues: make(map[domain.Venue]*venueState)}
		b.symbols[symbol] = ss
	}
	vs, ok := ss.venues[venue]
	if !ok {
		vs = &venueState{}
		ss.venues[venue] = vs
	}
	return vs
}

func (b *Book) snapshotLocked(symbol string) domain.SymbolBook {
	ss := b.symbols[symbol]
	out := domain.SymbolBook{
		Symbol:           symbol,
		Venues:           make(map[domain.Venue]domain.VenueBook, len(ss.venues)),
		LastReconciledAt: ss.lastReconciled,
	}
	for v, vs := range ss.venues {
		state := domain.BookSynced
		if vs.drifted {
			state = domain.BookDrifted
		}
		out.Venues[v] = domain.VenueBook{
			Tick:         vs.tick,
			HasTick:      vs.hasTick,
			ExpectedNext: vs.expectedNext,
			State:        state,
		}
	}
	return out
}
