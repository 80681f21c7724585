package coordinator

import (
	"time"

	"cryptobot/internal/indicator"
	"cryptobot/internal/model"
	"cryptobot/internal/portfolio"
	"cryptobot/internal/strategy"
	"cryptobot/pkg/exchangeapi"
)

// FrameReport is the strategy input of one signal interval.
type FrameReport struct {
	Interval string             `json:"interval"`
	Candles  int                `json:"candles"`
	Ready    bool               `json:"ready"`
	Latest   indicator.Snapshot `json:"latest"`
}

// Report summarizes one cycle. It is logged, archived and published.
type Report struct {
	CycleID   string    `json:"cycle_id"`
	Market    string    `json:"market"`
	At        time.Time `json:"at"`
	Simulated bool      `json:"simulated"`

	Price  float64 `json:"price"`
	Fiat   float64 `json:"fiat"`
	Crypto float64 `json:"crypto"`

	Frames  []FrameReport   `json:"frames"`
	Action  strategy.Action `json:"action"`
	Reasons []string        `json:"reasons,omitempty"`
	Skipped string          `json:"skipped,omitempty"` // why a signal was not acted on

	Fill        *model.Fill `json:"fill,omitempty"`
	OrderError  string      `json:"order_error,omitempty"`
	RealizedPnL float64     `json:"realized_pnl,omitempty"`

	Position      portfolio.Position         `json:"position"`
	UnrealizedPnL float64                    `json:"unrealized_pnl"`
	UnrealizedPct float64                    `json:"unrealized_pct"`
	TotalPnL      float64                    `json:"total_pnl"`
	RateLimit     exchangeapi.RateLimitState `json:"rate_limit"`

	// Simulation only.
	TotalValue     float64 `json:"total_value,omitempty"`
	PerformancePct float64 `json:"performance_pct,omitempty"`
}

// State is "open" or "flat".
func (r *Report) State() string {
	if r.Position.Open {
		return "open"
	}
	return "flat"
}
