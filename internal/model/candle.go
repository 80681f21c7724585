package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket for a single interval.
// OpenTime is the bucket start in epoch milliseconds. Prices and volume keep
// the exchange's decimal representation; indicator math converts on demand.
type Candle struct {
	OpenTime int64           `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Time returns OpenTime as a UTC time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// CloseFloat returns the close price as float64.
func (c *Candle) CloseFloat() float64 {
	f, _ := c.Close.Float64()
	return f
}

// HighFloat returns the high price as float64.
func (c *Candle) HighFloat() float64 {
	f, _ := c.High.Float64()
	return f
}

// LowFloat returns the low price as float64.
func (c *Candle) LowFloat() float64 {
	f, _ := c.Low.Float64()
	return f
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IntervalDuration maps an exchange interval string ("1m", "4h", "1d") to a
// duration. Returns 0 for unknown intervals.
func IntervalDuration(interval string) time.Duration {
	if len(interval) < 2 {
		return 0
	}
	n := 0
	for _, ch := range interval[:len(interval)-1] {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	}
	return 0
}
