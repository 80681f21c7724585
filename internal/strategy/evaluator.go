package strategy

import "fmt"

// Thresholds are the RSI levels used by Evaluator.
type Thresholds struct {
	RSIOversold   float64
	RSIOverbought float64
}

// DefaultThresholds returns 30 / 70.
func DefaultThresholds() Thresholds {
	return Thresholds{RSIOversold: 30, RSIOverbought: 70}
}

// Evaluator is a multi-timeframe mean-reversion strategy.
//
// Buy signal: on every frame, price < lower band AND RSI < oversold AND
// MACD histogram > 0 (momentum already turning up).
// Sell signal: on every frame, price > upper band AND RSI > overbought AND
// MACD histogram < 0.
//
// A frame that is not ready blocks both signals.
type Evaluator struct {
	name string
	th   Thresholds
}

// NewEvaluator creates an evaluator. Zero thresholds fall back to defaults.
func NewEvaluator(th Thresholds) *Evaluator {
	d := DefaultThresholds()
	if th.RSIOversold == 0 {
		th.RSIOversold = d.RSIOversold
	}
	if th.RSIOverbought == 0 {
		th.RSIOverbought = d.RSIOverbought
	}
	return &Evaluator{name: "BB_RSI_MACD_MTF", th: th}
}

func (e *Evaluator) Name() string { return e.name }

// Thresholds returns the effective thresholds.
func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate ANDs the per-frame predicates. No frames means no signal.
func (e *Evaluator) Evaluate(frames []Frame) Decision {
	if len(frames) == 0 {
		return Decision{Reasons: []string{"no frames"}}
	}

	buy, sell := true, true
	reasons := make([]string, 0, len(frames))
	for _, f := range frames {
		if !f.Ready {
			buy, sell = false, false
			reasons = append(reasons, f.Interval+": warming up")
			continue
		}
		fb, fs := e.BuyFrame(f), e.SellFrame(f)
		buy = buy && fb
		sell = sell && fs
		reasons = append(reasons, fmt.Sprintf("%s: rsi=%.2f hist=%.4f bb=[%.2f,%.2f] buy=%t sell=%t",
			f.Interval, f.Latest.RSI, f.Latest.MACDHist, f.Latest.BBLower, f.Latest.BBUpper, fb, fs))
	}
	return Decision{Buy: buy, Sell: sell, Reasons: reasons}
}

// BuyFrame reports whether a single frame satisfies the buy predicate.
func (e *Evaluator) BuyFrame(f Frame) bool {
	s := f.Latest
	return f.Price < s.BBLower && s.RSI < e.th.RSIOversold && s.MACDHist > 0
}

// SellFrame reports whether a single frame satisfies the sell predicate.
func (e *Evaluator) SellFrame(f Frame) bool {
	s := f.Latest
	return f.Price > s.BBUpper && s.RSI > e.th.RSIOverbought && s.MACDHist < 0
}
