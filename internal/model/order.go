package model

import "time"

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a market order request produced by the coordinator.
// Buys are sized in quote currency (AmountQuote), sells in the base asset (Amount).
type Order struct {
	Market      string  `json:"market"`
	Side        Side    `json:"side"`
	AmountQuote float64 `json:"amount_quote,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	RefPrice    float64 `json:"ref_price"` // ticker price at decision time
}

// Fill describes a completed order.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Market    string    `json:"market"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`    // quote per base unit
	Quantity  float64   `json:"quantity"` // base units
	Simulated bool      `json:"simulated"`
	FilledAt  time.Time `json:"filled_at"`
}

// Balance is the available amount of one asset.
type Balance struct {
	Symbol    string  `json:"symbol"`
	Available float64 `json:"available"`
	InOrder   float64 `json:"in_order"`
}
