package indicator

import "cryptobot/internal/model"

// Bollinger computes Bollinger Bands: SMA(period) ± k·σ, σ being the
// population standard deviation of the same window.
type Bollinger struct {
	sma *SMA
	k   float64
}

// NewBollinger creates bands over period closes at k standard deviations.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return name("BB", b.sma.period) }

func (b *Bollinger) Update(candle model.Candle) { b.sma.Update(candle) }

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.sma.Value() }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

// Bands returns middle, upper and lower. All zero until ready.
func (b *Bollinger) Bands() (middle, upper, lower float64) {
	if !b.Ready() {
		return 0, 0, 0
	}
	middle = b.sma.Value()
	sd := b.sma.StdDev()
	return middle, middle + b.k*sd, middle - b.k*sd
}
