package domain

import "time"

// BookState is the continuity state of one venue inside a SymbolBook.
type BookState string

const (
	BookSynced  BookState = "synced"
	BookDrifted BookState = "drifted"
)

// VenueBook is the per-venue slice of a SymbolBook.
type VenueBook struct {
	Tick         NormalizedTick
	HasTick      bool
	ExpectedNext uint64
	State        BookState
}

// SymbolBook is a point-in-time copy of the order book for one symbol.
type SymbolBook struct {
	Symbol           string
	Venues           map[Venue]VenueBook
	LastReconciledAt time.Time
}

// State reports DRIFTED if any venue drifted.
func (b SymbolBook) State() BookState {
	for _, v := range b.Venues {
		if v.State == BookDrifted {
			return BookDrifted
		}
	}
	return BookSynced
}

// Fresh returns the venue tick only if it exists and is no older than maxAge
// at now.
func (b SymbolBook) Fresh(venue Venue, now time.Time, maxAge time.Duration) (NormalizedTick, bool) {
	vb, ok := b.Venues[venue]
	if !ok || !vb.HasTick {
		return NormalizedTick{}, false
	}
	if maxAge > 0 && vb.Tick.Age(now) > maxAge {
		return NormalizedTick{}, false
	}
	return vb.Tick, true
}
