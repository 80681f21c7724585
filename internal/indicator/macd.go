package indicator

import "cryptobot/internal/model"

// MACD is EMA(fast) - EMA(slow) of closes, with a signal line EMA(signal)
// over the MACD values. All three EMAs seed at their first input.
type MACD struct {
	fast, slow, signal *EMA
	line               float64
	count              int
}

// NewMACD creates a MACD with the usual 12/26/9 style periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + itoa(m.fast.period) + "_" + itoa(m.slow.period) + "_" + itoa(m.signal.period)
}

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Add(m.line)
	m.count++
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }
func (m *MACD) Ready() bool    { return m.count > 0 }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Hist returns MACD - Signal.
func (m *MACD) Hist() float64 { return m.line - m.signal.Value() }
