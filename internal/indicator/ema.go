package indicator

import "cryptobot/internal/model"

// EMA calculates Exponential Moving Average.
// Seeded with the first value (no SMA warm-up), so it is ready after one input.
// O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return name("EMA", e.period) }

func (e *EMA) Update(candle model.Candle) { e.Add(candle.CloseFloat()) }

// Add feeds a raw value. MACD uses it to smooth its own line.
func (e *EMA) Add(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// EMA = (v * k) + (EMA_prev * (1 - k))
	e.current = v*e.multiplier + e.current*(1-e.multiplier)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
