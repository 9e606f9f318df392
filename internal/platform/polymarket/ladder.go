package polymarket

// ladder holds the bid and ask levels of one asset, keyed by price string.
type ladder struct {
	bids map[string]Level
	asks map[string]Level
}

func newLadder() *ladder {
	return &ladder{bids: make(map[string]Level), asks: make(map[string]Level)}
}

func (l *ladder) reset(bids, asks []Level) {
	clear(l.bids)
	clear(l.asks)
	for _, lv := range bids {
		l.set(l.bids, lv)
	}
	for _, lv := range asks {
		l.set(l.asks, lv)
	}
}

// change applies a price_change. side is the resting side: BUY = bid.
func (l *ladder) change(side string, lv Level) {
	if side == "SELL" {
		l.set(l.asks, lv)
		return
	}
	l.set(l.bids, lv)
}

func (l *ladder) set(m map[string]Level, lv Level) {
	key := lv.Price.String()
	if !lv.Size.IsPositive() {
		delete(m, key)
		return
	}
	m[key] = lv
}

func (l *ladder) top(asset string) BookTop {
	t := BookTop{AssetID: asset}
	first := true
	for _, lv := range l.bids {
		if first || lv.Price.GreaterThan(t.Bid) {
			t.Bid, t.BidSize = lv.Price, lv.Size
			first = false
		}
	}
	first = true
	for _, lv := range l.asks {
		if first || lv.Price.LessThan(t.Ask) {
			t.Ask, t.AskSize = lv.Price, lv.Size
			first = false
		}
	}
	return t
}

// TopOf computes the BookTop of a REST book.
func TopOf(b BookResponse) BookTop {
	l := newLadder()
	l.reset(b.Bids, b.Asks)
	return l.top(b.AssetID)
}

// empty reports whether a side is missing.
func (t BookTop) empty() bool {
	return t.Bid.IsZero() || t.Ask.IsZero() || !t.BidSize.IsPositive() || !t.AskSize.IsPositive()
}
