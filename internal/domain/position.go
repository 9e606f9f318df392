package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the YES-equivalent holding of one symbol on one venue. A flat
// position is kept for its history.
type Position struct {
	Symbol        string          `json:"symbol"`
	Venue         Venue           `json:"venue"`
	Quantity      int64           `json:"quantity"`        // signed; positive is long YES
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	FeesPaid      decimal.Decimal `json:"fees_paid"`
	Mark          decimal.Decimal `json:"mark"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Flat reports whether the position holds no contracts.
func (p Position) Flat() bool { return p.Quantity == 0 }

// PnLSummary aggregates ledger totals.
type PnLSummary struct {
	Realized    decimal.Decimal           `json:"realized"`
	Unrealized  decimal.Decimal           `json:"unrealized"`
	Fees        decimal.Decimal           `json:"fees"`
	Net         decimal.Decimal           `json:"net"`
	DayRealized decimal.Decimal           `json:"day_realized"`
	ByVenue     map[Venue]decimal.Decimal `json:"by_venue"`
	Positions   int                       `json:"positions"`
	Open        int                       `json:"open"`
}
