// Package indicator provides technical indicator calculations over candle data.
//
// Each indicator is a small streaming state machine fed one candle at a time.
// Engine.Compute replays a whole candle series through all of them in a
// single pass and returns one Snapshot per candle.
package indicator

import "cryptobot/internal/model"

// Indicator is the interface for all candle-fed indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_20", "RSI_14").
	Name() string

	// Update feeds the next candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

func name(kind string, period int) string {
	return kind + "_" + itoa(period)
}

// itoa converts a non-negative int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
