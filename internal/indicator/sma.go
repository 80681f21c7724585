package indicator

import (
	"math"

	"cryptobot/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer. The mean is re-summed over the window
// oldest-first on every update; no running sum is kept.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // next write position == oldest value once full
	count   int       // total values received
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return name("SMA", s.period) }

func (s *SMA) Update(candle model.Candle) { s.Add(candle.CloseFloat()) }

// Add feeds a raw value.
func (s *SMA) Add(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		sum := 0.0
		s.each(func(x float64) { sum += x })
		s.current = sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the window around the
// current mean. 0 until ready.
func (s *SMA) StdDev() float64 {
	if !s.Ready() {
		return 0
	}
	sumSq := 0.0
	s.each(func(x float64) {
		d := x - s.current
		sumSq += d * d
	})
	return math.Sqrt(sumSq / float64(s.period))
}

// each visits the full window oldest-first.
func (s *SMA) each(fn func(float64)) {
	for i := 0; i < s.period; i++ {
		fn(s.buf[(s.idx+i)%s.period])
	}
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
