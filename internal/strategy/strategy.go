// Package strategy turns indicator snapshots into trading decisions.
//
// A Strategy receives one Frame per timeframe (the latest indicator snapshot
// plus the current reference price) and returns a Decision. The coordinator
// decides whether a Decision may be acted on given the current position.
package strategy

import (
	"fmt"
	"strings"

	"cryptobot/internal/indicator"
)

// Action is the trading action implied by a Decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Frame is one timeframe's view at evaluation time.
type Frame struct {
	Interval string
	Price    float64 // reference price (ticker), shared by all frames in one cycle
	Latest   indicator.Snapshot
	Ready    bool // series long enough for every indicator field
}

// Decision is the combined verdict over all frames. Buy and Sell are never
// both true.
type Decision struct {
	Buy     bool
	Sell    bool
	Reasons []string
}

// Action maps the decision to BUY, SELL or HOLD.
func (d Decision) Action() Action {
	switch {
	case d.Buy:
		return ActionBuy
	case d.Sell:
		return ActionSell
	}
	return ActionHold
}

func (d Decision) String() string {
	return fmt.Sprintf("%s [%s]", d.Action(), strings.Join(d.Reasons, "; "))
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate returns the decision for this cycle's frames.
	Evaluate(frames []Frame) Decision
}
