package indicator

import (
	"math"

	"cryptobot/internal/model"
)

// ATR is the Average True Range with Wilder smoothing.
// TR starts at the second candle; the first value is the mean of the first
// period TRs and appears at candle index period.
type ATR struct {
	period    int
	count     int
	prevClose float64
	tr        *SMMA
}

// NewATR creates an ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, tr: NewSMMA(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

func (a *ATR) Update(candle model.Candle) {
	high, low, cl := candle.HighFloat(), candle.LowFloat(), candle.CloseFloat()
	a.count++
	if a.count == 1 {
		a.prevClose = cl
		return
	}
	a.tr.Add(TrueRange(high, low, a.prevClose))
	a.prevClose = cl
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.tr.Value()
}

func (a *ATR) Ready() bool { return a.tr.Seeded() }

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := math.Abs(high - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(low - prevClose); v > tr {
		tr = v
	}
	return tr
}
