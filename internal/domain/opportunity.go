package domain

import (
	"github.com/shopspring/decimal"
)

// Leg is one order of a two-venue trade.
type Leg struct {
	Venue   Venue           `json:"venue"`
	Outcome Outcome         `json:"outcome"`
	Side    OrderSide       `json:"side"`
	Price   decimal.Decimal `json:"price"`
	Size    int64           `json:"size"`
	Fee     decimal.Decimal `json:"fee"`
}

// Notional returns price × size.
func (l Leg) Notional() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Size))
}

// ArbitrageOpportunity is a detected fee-adjusted crossing. Legs[0] is always
// on the primary venue. It is consumed once and never re-evaluated.
type ArbitrageOpportunity struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Legs           [2]Leg          `json:"legs"`
	GrossEdge      decimal.Decimal `json:"gross_edge"`      // per contract
	NetEdge        decimal.Decimal `json:"net_edge"`        // per contract, after all fees
	TotalFees      decimal.Decimal `json:"total_fees"`      // trading fees for the full size
	SettlementFees decimal.Decimal `json:"settlement_fees"` // contingent fees for the full size
	Notional       decimal.Decimal `json:"notional"`        // cost per contract of both legs
	DetectedAt     int64           `json:"detected_at"`     // ns
}

// Size is the contract count of the trade.
func (o ArbitrageOpportunity) Size() int64 { return o.Legs[0].Size }

// ExpectedProfit is NetEdge × size.
func (o ArbitrageOpportunity) ExpectedProfit() decimal.Decimal {
	return o.NetEdge.Mul(decimal.NewFromInt(o.Size()))
}

// NetEdgeBps expresses NetEdge in basis points of Notional.
func (o ArbitrageOpportunity) NetEdgeBps() decimal.Decimal {
	if o.Notional.IsZero() {
		return decimal.Zero
	}
	return o.NetEdge.Div(o.Notional).Mul(decimal.NewFromInt(10_000))
}
