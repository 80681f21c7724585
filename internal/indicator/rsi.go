package indicator

import "cryptobot/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
//
// Gains and losses are smoothed from candle index period-1, where the seed is
// gain/period of that single bar (not the mean of the first period deltas).
// The first value is produced at index period. When the average loss is zero
// RS is pinned to 100, so RSI tops out just above 99.
// Update is O(1) per candle.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *SMMA
	losses    *SMMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMMASeeded(period, 1),
		losses: NewSMMASeeded(period, 1),
	}
}

func (r *RSI) Name() string { return name("RSI", r.period) }

func (r *RSI) Update(candle model.Candle) {
	price := candle.CloseFloat()
	r.count++

	if r.count == 1 {
		// First candle: just record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price
	if r.count < r.period {
		return
	}

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Add(gain)
	r.losses.Add(loss)
	if !r.gains.Smoothed() {
		return
	}

	rs := 100.0
	if al := r.losses.Value(); al != 0 {
		rs = r.gains.Value() / al
	}
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.gains.Smoothed() }
