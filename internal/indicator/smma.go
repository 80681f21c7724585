package indicator

// SMMA is Wilder's smoothed moving average over a stream of raw values.
//
// The first seedLen values are summed and divided by period to produce the
// seed; every later value v gives (prev*(period-1) + v) / period.
// With seedLen == period this is the textbook SMMA. RSI seeds from a single
// value (seedLen 1).
type SMMA struct {
	period  int
	seedLen int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a textbook SMMA seeded with the mean of the first period values.
func NewSMMA(period int) *SMMA {
	return NewSMMASeeded(period, period)
}

// NewSMMASeeded creates an SMMA whose seed is sum(first seedLen values) / period.
func NewSMMASeeded(period, seedLen int) *SMMA {
	if seedLen < 1 {
		seedLen = 1
	}
	return &SMMA{period: period, seedLen: seedLen}
}

// Add feeds the next value.
func (s *SMMA) Add(v float64) {
	s.count++
	if s.count <= s.seedLen {
		s.sum += v
		if s.count == s.seedLen {
			s.current = s.sum / float64(s.period)
		}
		return
	}
	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }

// Seeded reports whether the seed has been formed.
func (s *SMMA) Seeded() bool { return s.count >= s.seedLen }

// Smoothed reports whether at least one value has been smoothed past the seed.
func (s *SMMA) Smoothed() bool { return s.count > s.seedLen }

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
