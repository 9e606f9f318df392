package kalshi

// ladder holds the resting YES and NO bids of one market.
type ladder struct {
	yes map[int64]int64 // price cents -> quantity
	no  map[int64]int64
}

func newLadder() *ladder {
	return &ladder{yes: make(map[int64]int64), no: make(map[int64]int64)}
}

// reset replaces the ladder with a full book.
func (l *ladder) reset(yes, no []PriceLevel) {
	clear(l.yes)
	clear(l.no)
	for _, lvl := range yes {
		if lvl.Quantity > 0 {
			l.yes[lvl.Price] = lvl.Quantity
		}
	}
	for _, lvl := range no {
		if lvl.Quantity > 0 {
			l.no[lvl.Price] = lvl.Quantity
		}
	}
}

// apply adds delta to one level; a level at or below zero is removed.
func (l *ladder) apply(side string, price, delta int64) {
	m := l.yes
	if side == "no" {
		m = l.no
	}
	q := m[price] + delta
	if q <= 0 {
		delete(m, price)
		return
	}
	m[price] = q
}

// top returns the best bid on each side.
func (l *ladder) top(ticker string) BookTop {
	t := BookTop{Ticker: ticker}
	t.YesBid, t.YesBidSize = best(l.yes)
	t.NoBid, t.NoBidSize = best(l.no)
	return t
}

func best(m map[int64]int64) (price, qty int64) {
	for p, q := range m {
		if p > price {
			price, qty = p, q
		}
	}
	return price, qty
}

// TopOf computes the BookTop of a REST orderbook.
func TopOf(ticker string, ob Orderbook) BookTop {
	l := newLadder()
	l.reset(ob.Yes, ob.No)
	return l.top(ticker)
}
