package domain

import (
	"fmt"
	"strings"
)

// Venue identifies a participating exchange. Venue identity is a value so a
// new exchange only needs a gateway and a normalizer.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// ParseVenue converts a config or URL string into a Venue.
func ParseVenue(s string) (Venue, error) {
	switch v := Venue(strings.ToLower(strings.TrimSpace(s))); v {
	case VenueKalshi, VenuePolymarket:
		return v, nil
	default:
		return "", fmt.Errorf("unknown venue %q", s)
	}
}

// Outcome is the side of a binary contract.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// OrderSide indicates whether an order buys or sells contracts.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the offsetting side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// SymbolMap translates canonical symbols to venue-native identifiers and back.
type SymbolMap struct {
	toNative    map[Venue]map[string]string
	toCanonical map[Venue]map[string]string
}

// NewSymbolMap returns an empty SymbolMap.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{
		toNative:    make(map[Venue]map[string]string),
		toCanonical: make(map[Venue]map[string]string),
	}
}

// Add registers the native identifier of symbol on venue.
func (m *SymbolMap) Add(venue Venue, symbol, native string) {
	if m.toNative[venue] == nil {
		m.toNative[venue] = make(map[string]string)
		m.toCanonical[venue] = make(map[string]string)
	}
	m.toNative[venue][symbol] = native
	m.toCanonical[venue][native] = symbol
}

// Native returns the venue identifier for a canonical symbol.
func (m *SymbolMap) Native(venue Venue, symbol string) (string, bool) {
	n, ok := m.toNative[venue][symbol]
	return n, ok
}

// Canonical returns the canonical symbol for a venue identifier. Unmapped
// identifiers are returned unchanged with ok=false.
func (m *SymbolMap) Canonical(venue Venue, native string) (string, bool) {
	s, ok := m.toCanonical[venue][native]
	if !ok {
		return native, false
	}
	return s, true
}

// Symbols lists the canonical symbols registered for venue.
func (m *SymbolMap) Symbols(venue Venue) []string {
	out := make([]string, 0, len(m.toNative[venue]))
	for s := range m.toNative[venue] {
		out = append(out, s)
	}
	return out
}
