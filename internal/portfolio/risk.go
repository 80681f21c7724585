package portfolio

import "fmt"

// RiskLimits defines the gates applied before any order is sized.
type RiskLimits struct {
	MaxPositionFraction float64 `json:"max_position_fraction"` // share of fiat spent per buy (0,1]
	MinFiatBalance      float64 `json:"min_fiat_balance"`      // buys need strictly more fiat than this
	FlatThreshold       float64 `json:"flat_threshold"`        // crypto below this counts as holding nothing
	DustThreshold       float64 `json:"dust_threshold"`        // sells need strictly more crypto than this
}

// DefaultRiskLimits returns 25% sizing, a 50 fiat floor and the 1e-8 / 1e-5
// crypto thresholds.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionFraction: 0.25,
		MinFiatBalance:      50,
		FlatThreshold:       1e-8,
		DustThreshold:       1e-5,
	}
}

// Validate rejects limits that would size nothing or more than the balance.
func (r RiskLimits) Validate() error {
	if r.MaxPositionFraction <= 0 || r.MaxPositionFraction > 1 {
		return fmt.Errorf("max position fraction %.4f outside (0,1]", r.MaxPositionFraction)
	}
	if r.MinFiatBalance < 0 || r.DustThreshold < 0 || r.FlatThreshold < 0 {
		return fmt.Errorf("negative threshold in %+v", r)
	}
	return nil
}

// CanBuy checks the buy gates. It returns the fiat amount to spend, or a
// reason why no buy is allowed.
func (r RiskLimits) CanBuy(pos Position, fiat, crypto float64) (float64, string) {
	switch {
	case pos.Open:
		return 0, "position already open"
	case crypto >= r.FlatThreshold:
		return 0, fmt.Sprintf("already holding %.8f", crypto)
	case fiat <= r.MinFiatBalance:
		return 0, fmt.Sprintf("fiat %.2f not above minimum %.2f", fiat, r.MinFiatBalance)
	}
	return r.MaxPositionFraction * fiat, ""
}

// CanSell checks the sell gates. It returns the quantity to sell (everything
// held), or a reason why no sell is allowed.
func (r RiskLimits) CanSell(pos Position, crypto float64) (float64, string) {
	switch {
	case !pos.Open:
		return 0, "no open position"
	case pos.EntryPrice <= 0:
		return 0, "unknown entry price"
	case crypto <= r.DustThreshold:
		return 0, fmt.Sprintf("crypto %.8f at or below dust threshold", crypto)
	}
	return crypto, ""
}
