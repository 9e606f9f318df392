package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

type positionKey struct {
	symbol string
	venue  domain.Venue
}

// PositionService is the in-memory position ledger. Quantities are kept in
// YES-equivalent terms using average cost; realized P&L is booked when a
// fill reduces a position.
type PositionService struct {
	mu        sync.RWMutex
	positions map[positionKey]*domain.Position
	day       string
	dayPnL    decimal.Decimal // realized minus fees since UTC midnight
	sink      *Sink
	now       func() time.Time
	logger    *slog.Logger
}

// NewPositionService creates an empty ledger. sink may be nil.
func NewPositionService(sink *Sink, logger *slog.Logger) *PositionService {
	return &PositionService{
		positions: make(map[positionKey]*domain.Position),
		sink:      sink,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// SetClock overrides the clock. Tests only.
func (s *PositionService) SetClock(now func() time.Time) { s.now = now }

// ApplyFill folds fill into the position for its symbol and venue and
// returns the updated position.
func (s *PositionService) ApplyFill(ctx context.Context, fill domain.Fill) domain.Position {
	qty, price := fill.YesEquivalent()

	s.mu.Lock()
	now := s.now()
	s.rollDayLocked(now)

	pos := s.getLocked(fill.Symbol, fill.Venue)
	realized := applyQuantity(pos, qty, price)

	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.FeesPaid = pos.FeesPaid.Add(fill.Fee)
	if pos.Mark.IsZero() {
		pos.Mark = price
	}
	pos.UnrealizedPnL = unrealized(pos)
	pos.UpdatedAt = now
	s.dayPnL = s.dayPnL.Add(realized).Sub(fill.Fee)

	out := *pos
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "position_service: fill applied",
		slog.String("symbol", fill.Symbol),
		slog.String("venue", string(fill.Venue)),
		slog.String("outcome", string(fill.Outcome)),
		slog.String("side", string(fill.Side)),
		slog.String("price", fill.Price.String()),
		slog.Int64("size", fill.Size),
		slog.Int64("quantity", out.Quantity),
		slog.String("realized", realized.String()),
	)
	if s.sink != nil {
		s.sink.PositionSnapshot(ctx, out)
	}
	return out
}

// applyQuantity adds a signed YES quantity at price to pos using average
// cost and returns the P&L realized by any reduction.
func applyQuantity(pos *domain.Position, qty int64, price decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero
	cur := pos.Quantity

	switch {
	case cur == 0 || sameSign(cur, qty):
		total := abs(cur) + abs(qty)
		cost := pos.AvgEntryPrice.Mul(decimal.NewFromInt(abs(cur))).
			Add(price.Mul(decimal.NewFromInt(abs(qty))))
		pos.AvgEntryPrice = cost.Div(decimal.NewFromInt(total))
		pos.Quantity = cur + qty
	default:
		closed := min(abs(cur), abs(qty))
		pnl := price.Sub(pos.AvgEntryPrice).Mul(decimal.NewFromInt(closed))
		if cur < 0 {
			pnl = pnl.Neg()
		}
		realized = pnl
		pos.Quantity = cur + qty
		switch {
		case pos.Quantity == 0:
			pos.AvgEntryPrice = decimal.Zero
		case !sameSign(pos.Quantity, cur):
			// flipped through zero; the remainder opened at price
			pos.AvgEntryPrice = price
		}
	}
	return realized
}

// Mark sets the mark price of a position and recomputes unrealized P&L. It
// is a no-op for unknown positions.
func (s *PositionService) Mark(symbol string, venue domain.Venue, mark decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionKey{symbol, venue}]
	if !ok {
		return
	}
	pos.Mark = mark
	pos.UnrealizedPnL = unrealized(pos)
}

// MarkAll marks every open position at the YES mid of its latest quote.
func (s *PositionService) MarkAll(quotes domain.QuoteSource) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, pos := range s.positions {
		if pos.Quantity == 0 {
			continue
		}
		t, ok := quotes.Latest(k.symbol, k.venue)
		if !ok {
			continue
		}
		pos.Mark = t.Mid()
		pos.UnrealizedPnL = unrealized(pos)
		n++
	}
	return n
}

// Quantity returns the signed YES-equivalent quantity held.
func (s *PositionService) Quantity(symbol string, venue domain.Venue) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos, ok := s.positions[positionKey{symbol, venue}]; ok {
		return pos.Quantity
	}
	return 0
}

// Position returns a copy of one position.
func (s *PositionService) Position(symbol string, venue domain.Venue) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[positionKey{symbol, venue}]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of every position, flat ones included, ordered
// by symbol then venue.
func (s *PositionService) Positions() []domain.Position {
	s.mu.RLock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Venue < out[j].Venue
	})
	return out
}

// DayPnL returns realized P&L net of fees since UTC midnight.
func (s *PositionService) DayPnL() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(s.now())
	return s.dayPnL
}

// Summary aggregates the ledger.
func (s *PositionService) Summary() domain.PnLSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(s.now())

	sum := domain.PnLSummary{
		ByVenue:     make(map[domain.Venue]decimal.Decimal),
		DayRealized: s.dayPnL,
	}
	for k, p := range s.positions {
		sum.Realized = sum.Realized.Add(p.RealizedPnL)
		sum.Unrealized = sum.Unrealized.Add(p.UnrealizedPnL)
		sum.Fees = sum.Fees.Add(p.FeesPaid)
		net := p.RealizedPnL.Add(p.UnrealizedPnL).Sub(p.FeesPaid)
		sum.ByVenue[k.venue] = sum.ByVenue[k.venue].Add(net)
		sum.Positions++
		if p.Quantity != 0 {
			sum.Open++
		}
	}
	sum.Net = sum.Realized.Add(sum.Unrealized).Sub(sum.Fees)
	return sum
}

// Restore seeds the ledger from persisted snapshots, typically at startup.
func (s *PositionService) Restore(positions []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		cp := p
		s.positions[positionKey{p.Symbol, p.Venue}] = &cp
	}
}

func (s *PositionService) getLocked(symbol string, venue domain.Venue) *domain.Position {
	k := positionKey{symbol, venue}
	pos, ok := s.positions[k]
	if !ok {
		pos = &domain.Position{Symbol: symbol, Venue: venue}
		s.positions[k] = pos
	}
	return pos
}

func (s *PositionService) rollDayLocked(now time.Time) {
	day := now.UTC().Format(time.DateOnly)
	if day != s.day {
		s.day = day
		s.dayPnL = decimal.Zero
	}
}

func unrealized(p *domain.Position) decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}
	return p.Mark.Sub(p.AvgEntryPrice).Mul(decimal.NewFromInt(p.Quantity))
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// SeedDayPnL adds pnl, typically today's persisted realized P&L, to the
// running daily total so a restart does not reset the loss limit.
func (s *PositionService) SeedDayPnL(pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked(s.now())
	s.dayPnL = s.dayPnL.Add(pnl)
}
