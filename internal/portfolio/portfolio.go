// Package portfolio tracks the single open position, the cumulative P/L ledger
// and the risk gates that decide when an order may be sized and placed.
package portfolio

import (
	"time"

	"cryptobot/internal/model"
)

// Position is the bot's holding in its one market. The zero value is flat.
type Position struct {
	Market     string    `json:"market"`
	Open       bool      `json:"open"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
}

// Enter records a buy fill and marks the position open.
func (p *Position) Enter(f model.Fill) {
	p.Market = f.Market
	p.Open = true
	p.EntryPrice = f.Price
	p.Quantity = f.Quantity
	p.OpenedAt = f.FilledAt
}

// Exit records a sell fill, returns the realized P/L (exit - entry) * quantity
// and resets the position to flat.
func (p *Position) Exit(f model.Fill) float64 {
	pnl := RealizedPnL(p.EntryPrice, f.Price, f.Quantity)
	*p = Position{Market: p.Market}
	return pnl
}

// UnrealizedPnL is the P/L if qty were sold at price now.
func (p *Position) UnrealizedPnL(price, qty float64) float64 {
	if !p.Open || p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) * qty
}

// UnrealizedPct is the price change since entry, in percent.
func (p *Position) UnrealizedPct(price float64) float64 {
	if !p.Open || p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// RealizedPnL is (exit - entry) * quantity.
func RealizedPnL(entry, exit, quantity float64) float64 {
	return (exit - entry) * quantity
}
