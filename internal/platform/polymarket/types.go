package polymarket

import (
	"github.com/shopspring/decimal"
)

// Market pairs the two outcome tokens of one Polymarket market. Books are
// streamed for the YES token; the NO token is only used for orders.
type Market struct {
	YesToken string
	NoToken  string
}

// --------------------------------------------------------------------------
// CLOB REST DTOs
// --------------------------------------------------------------------------

// Level is one price level as the CLOB sends it, with decimal strings.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookResponse is the body of GET /book.
type BookResponse struct {
	Market    string  `json:"market"`
	AssetID   string  `json:"asset_id"`
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
	Hash      string  `json:"hash"`
	Timestamp string  `json:"timestamp"`
}

// SignedOrder is the order object of POST /order.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"` // "BUY" or "SELL"
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// PostOrderRequest is the body of POST /order.
type PostOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"` // API key
	OrderType string      `json:"orderType"`
}

// PostOrderResponse is the result of POST /order. Amounts are decimal
// strings in token units.
type PostOrderResponse struct {
	Success      bool            `json:"success"`
	ErrorMsg     string          `json:"errorMsg,omitempty"`
	OrderID      string          `json:"orderID,omitempty"`
	Status       string          `json:"status,omitempty"` // "matched", "live", "delayed", "unmatched"
	MakingAmount decimal.Decimal `json:"makingAmount"`
	TakingAmount decimal.Decimal `json:"takingAmount"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSEvent is one market-channel event. Frames carry either a single event
// or an array of them.
type WSEvent struct {
	EventType    string        `json:"event_type"` // "book", "price_change", "last_trade_price", "tick_size_change"
	AssetID      string        `json:"asset_id"`
	Market       string        `json:"market"`
	Bids         []Level       `json:"bids,omitempty"`
	Asks         []Level       `json:"asks,omitempty"`
	PriceChanges []PriceChange `json:"price_changes,omitempty"`
	Timestamp    string        `json:"timestamp"`
}

// PriceChange sets the size of one level. Size zero removes the level.
type PriceChange struct {
	AssetID string          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	Side    string          `json:"side"` // "BUY" (bid) or "SELL" (ask)
}

// WSSubscribe is sent once per connection to select assets.
type WSSubscribe struct {
	Type     string   `json:"type"` // "market"
	AssetIDs []string `json:"assets_ids"`
}

// BookTop is the venue message the Polymarket feed emits for one asset.
type BookTop struct {
	AssetID    string
	Bid        decimal.Decimal
	BidSize    decimal.Decimal
	Ask        decimal.Decimal
	AskSize    decimal.Decimal
	Seq        uint64
	ExchangeTS int64 // ns, 0 when unknown
}
