package indicator

import "cryptobot/internal/model"

// Params configures the indicator set computed by Engine.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAPeriod  int
	BBPeriod   int
	BBStdDev   float64
	ATRPeriod  int
}

// DefaultParams returns RSI 14, MACD 12/26/9, EMA 20, Bollinger 20/2σ, ATR 14.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		EMAPeriod:  20,
		BBPeriod:   20,
		BBStdDev:   2,
		ATRPeriod:  14,
	}
}

// Snapshot holds every indicator value at one candle. Fields whose lookback
// is not yet satisfied are zero.
type Snapshot struct {
	OpenTime   int64   `json:"open_time"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	EMA        float64 `json:"ema"`
	BBMiddle   float64 `json:"bb_middle"`
	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	ATR        float64 `json:"atr"`
}

// Engine recomputes indicator series from scratch. It holds no state between
// calls, so one Engine can serve every interval.
type Engine struct {
	params Params
}

// NewEngine creates an indicator engine. Zero-valued params fall back to
// DefaultParams.
func NewEngine(p Params) *Engine {
	d := DefaultParams()
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.MACDFast <= 0 {
		p.MACDFast = d.MACDFast
	}
	if p.MACDSlow <= 0 {
		p.MACDSlow = d.MACDSlow
	}
	if p.MACDSignal <= 0 {
		p.MACDSignal = d.MACDSignal
	}
	if p.EMAPeriod <= 0 {
		p.EMAPeriod = d.EMAPeriod
	}
	if p.BBPeriod <= 0 {
		p.BBPeriod = d.BBPeriod
	}
	if p.BBStdDev <= 0 {
		p.BBStdDev = d.BBStdDev
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
	return &Engine{params: p}
}

// Params returns the effective parameters.
func (e *Engine) Params() Params { return e.params }

// Names lists the indicators Compute produces, e.g. for status output.
func (e *Engine) Names() []string {
	p := e.params
	return []string{
		NewRSI(p.RSIPeriod).Name(),
		NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal).Name(),
		NewEMA(p.EMAPeriod).Name(),
		NewBollinger(p.BBPeriod, p.BBStdDev).Name(),
		NewATR(p.ATRPeriod).Name(),
	}
}

// WarmupLen is the number of candles needed before every snapshot field is
// populated: the largest lookback among RSI, Bollinger and ATR (20 with the
// defaults). MACD and EMA are seeded from the first candle.
func (e *Engine) WarmupLen() int {
	n := e.params.BBPeriod
	if v := e.params.RSIPeriod + 1; v > n {
		n = v
	}
	if v := e.params.ATRPeriod + 1; v > n {
		n = v
	}
	return n
}

// Compute returns one Snapshot per candle, index-aligned with candles.
// candles must be ascending by OpenTime. Single pass; the input is not modified.
func (e *Engine) Compute(candles []model.Candle) []Snapshot {
	out := make([]Snapshot, len(candles))
	if len(candles) == 0 {
		return out
	}

	p := e.params
	var (
		ema  = NewEMA(p.EMAPeriod)
		macd = NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal)
		rsi  = NewRSI(p.RSIPeriod)
		bb   = NewBollinger(p.BBPeriod, p.BBStdDev)
		atr  = NewATR(p.ATRPeriod)
	)
	// The signal line is only reported once the series is at least as long
	// as its period; shorter series leave signal and histogram at zero.
	withSignal := len(candles) >= p.MACDSignal
	all := []Indicator{ema, macd, rsi, bb, atr}

	for i := range candles {
		c := candles[i]
		for _, ind := range all {
			ind.Update(c)
		}

		s := &out[i]
		s.OpenTime = c.OpenTime
		s.EMA = ema.Value()
		s.MACD = macd.Value()
		if withSignal {
			s.MACDSignal = macd.Signal()
			s.MACDHist = macd.Hist()
		}
		if rsi.Ready() {
			s.RSI = rsi.Value()
		}
		s.BBMiddle, s.BBUpper, s.BBLower = bb.Bands()
		s.ATR = atr.Value()
	}
	return out
}

// Latest computes the series and returns its last snapshot.
// ok is false for an empty series.
func (e *Engine) Latest(candles []model.Candle) (Snapshot, bool) {
	if len(candles) == 0 {
		return Snapshot{}, false
	}
	all := e.Compute(candles)
	return all[len(all)-1], true
}
