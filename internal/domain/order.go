package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order lifecycle as far as the engine cares.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a limit order the engine asks a gateway to fill immediately.
type Order struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Venue   Venue           `json:"venue"`
	Outcome Outcome         `json:"outcome"`
	Side    OrderSide       `json:"side"`
	Price   decimal.Decimal `json:"price"`   // limit
	Size    int64           `json:"size"`
	Type    OrderType       `json:"type"`
	Purpose string          `json:"purpose"` // "leg1", "leg2", "hedge"
}

// Fill is a completed (possibly partial) execution of an Order.
type Fill struct {
	OrderID  string          `json:"order_id"`
	VenueID  string          `json:"venue_id"`  // exchange order id
	Symbol   string          `json:"symbol"`
	Venue    Venue           `json:"venue"`
	Outcome  Outcome         `json:"outcome"`
	Side     OrderSide       `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Size     int64           `json:"size"`
	Fee      decimal.Decimal `json:"fee"`
	FilledAt time.Time       `json:"filled_at"`
}

// YesEquivalent expresses the fill as a signed YES quantity and YES price.
// Buying NO at p is selling YES at 1 − p.
func (f Fill) YesEquivalent() (qty int64, price decimal.Decimal) {
	qty = f.Size
	if f.Side == OrderSideSell {
		qty = -qty
	}
	price = f.Price
	if f.Outcome == OutcomeNo {
		qty = -qty
		price = One.Sub(f.Price)
	}
	return qty, price
}
