package kalshi

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// Market is the subset of a Kalshi market the engine checks at startup.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "active", "open", "closed", "settled"
	YesBid      int64  `json:"yes_bid"`
	YesAsk      int64  `json:"yes_ask"`
	CloseTime   string `json:"close_time"`
}

// PriceLevel is one resting bid level. Kalshi encodes levels as
// [price_cents, quantity] arrays.
type PriceLevel struct {
	Price    int64 // cents, 1-99
	Quantity int64
}

// UnmarshalJSON accepts the [price, quantity] array form.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("kalshi: price level: want 2 elements, got %d", len(pair))
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

// MarshalJSON emits the [price, quantity] array form.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{l.Price, l.Quantity})
}

// Orderbook is the REST orderbook. Kalshi only lists bids: YES bids and NO
// bids. A NO bid at p is a YES offer at 100 − p.
type Orderbook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}

// CreateOrderRequest is the body of POST /portfolio/orders.
type CreateOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
	TimeInForce   string `json:"time_in_force,omitempty"`
}

// OrderInfo is the order object returned by the order endpoints.
type OrderInfo struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"`
	TakerFees      int64  `json:"taker_fees"`
	MakerFillCount int64  `json:"maker_fill_count"`
	MakerFillCost  int64  `json:"maker_fill_cost"`
	MakerFees      int64  `json:"maker_fees"`
}

// Filled returns the contracts executed so far.
func (o OrderInfo) Filled() int64 { return o.TakerFillCount + o.MakerFillCount }

// ErrorResponse is the Kalshi error body.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSEnvelope wraps every WebSocket frame. Seq is per subscription.
type WSEnvelope struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", "subscribed", "error"
	SID  int64           `json:"sid"`
	Seq  uint64          `json:"seq"`
	ID   int64           `json:"id"`
	Msg  json.RawMessage `json:"msg"`
}

// WSSnapshot is the full book sent when a subscription starts.
type WSSnapshot struct {
	MarketTicker string       `json:"market_ticker"`
	Yes          []PriceLevel `json:"yes"`
	No           []PriceLevel `json:"no"`
}

// WSDelta changes the resting quantity of one level by Delta.
type WSDelta struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	Delta        int64  `json:"delta"`
	Side         string `json:"side"` // "yes" or "no"
	TS           string `json:"ts,omitempty"`
}

// WSSubscribed acknowledges a subscribe command.
type WSSubscribed struct {
	Channel string `json:"channel"`
	SID     int64  `json:"sid"`
}

// WSCommand is sent to subscribe or unsubscribe.
type WSCommand struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params WSCommandParams `json:"params"`
}

// WSCommandParams are the parameters of a WSCommand.
type WSCommandParams struct {
	Channels      []string `json:"channels,omitempty"`
	MarketTickers []string `json:"market_tickers,omitempty"`
	SIDs          []int64  `json:"sids,omitempty"`
}

// BookTop is the venue message the Kalshi feed emits: the best YES bid and
// best NO bid of one market after applying a snapshot or delta.
type BookTop struct {
	Ticker     string
	YesBid     int64 // cents, 0 when the side is empty
	YesBidSize int64
	NoBid      int64
	NoBidSize  int64
	Seq        uint64
	ExchangeTS int64 // ns, 0 when unknown
	Gap        bool  // the venue stream skipped updates before this one
}

// twoSided reports whether both a YES and a NO bid rest on the book.
func (t BookTop) twoSided() bool { return t.YesBid > 0 && t.NoBid > 0 }
