package model

import "strings"

// Market identifies a trading pair such as "BTC-EUR".
type Market string

// Base returns the traded asset ("BTC" for "BTC-EUR").
func (m Market) Base() string {
	base, _, _ := strings.Cut(string(m), "-")
	return base
}

// Quote returns the fiat/quote asset ("EUR" for "BTC-EUR").
// Returns "" when the market has no separator.
func (m Market) Quote() string {
	_, quote, _ := strings.Cut(string(m), "-")
	return quote
}

func (m Market) String() string { return string(m) }
