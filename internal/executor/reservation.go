package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

var (
	ErrCapitalExhausted = errors.New("venue capital exhausted")
	ErrDuplicate        = errors.New("opportunity already consumed")
)

// reservations guards the one-execution-per-symbol rule and the per-venue
// capital budget. Every successful reserve must be paired with its release.
type reservations struct {
	mu       sync.Mutex
	inFlight map[string]string // symbol -> opportunity id
	used     map[domain.Venue]decimal.Decimal
	limits   map[domain.Venue]decimal.Decimal // zero or absent means unlimited
	seen     map[string]time.Time             // opportunity id -> consumed at
	ttl      time.Duration
}

func newReservations(limits map[domain.Venue]decimal.Decimal, ttl time.Duration) *reservations {
	return &reservations{
		inFlight: make(map[string]string),
		used:     make(map[domain.Venue]decimal.Decimal),
		limits:   limits,
		seen:     make(map[string]time.Time),
		ttl:      ttl,
	}
}

// reserve claims the symbol and the capital both legs need.
func (r *reservations) reserve(opp domain.ArbitrageOpportunity) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if at, ok := r.seen[opp.ID]; ok && now.Sub(at) < r.ttl {
		return nil, ErrDuplicate
	}
	if id, ok := r.inFlight[opp.Symbol]; ok {
		return nil, fmt.Errorf("%s held by %s: %w", opp.Symbol, id, domain.ErrInFlight)
	}

	need := make(map[domain.Venue]decimal.Decimal, 2)
	for _, leg := range opp.Legs {
		need[leg.Venue] = need[leg.Venue].Add(leg.Notional()).Add(leg.Fee)
	}
	for venue, amt := range need {
		limit := r.limits[venue]
		if limit.IsPositive() && r.used[venue].Add(amt).GreaterThan(limit) {
			return nil, fmt.Errorf("%s needs %s, %s of %s in use: %w",
				venue, amt, r.used[venue], limit, ErrCapitalExhausted)
		}
	}

	r.inFlight[opp.Symbol] = opp.ID
	r.seen[opp.ID] = now
	for venue, amt := range need {
		r.used[venue] = r.used[venue].Add(amt)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.inFlight, opp.Symbol)
			for venue, amt := range need {
				r.used[venue] = r.used[venue].Sub(amt)
			}
		})
	}, nil
}

// symbols returns the symbols currently executing.
func (r *reservations) symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.inFlight))
	for s := range r.inFlight {
		out = append(out, s)
	}
	return out
}

// capitalInUse returns a copy of the reserved capital per venue.
func (r *reservations) capitalInUse() map[domain.Venue]decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.Venue]decimal.Decimal, len(r.used))
	for v, amt := range r.used {
		out[v] = amt
	}
	return out
}

// cleanup forgets consumed opportunity ids older than the ttl.
func (r *reservations) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, at := range r.seen {
		if now.Sub(at) >= r.ttl {
			delete(r.seen, id)
		}
	}
}
