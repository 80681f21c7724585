// Package execution places market orders, either on the exchange or against
// a simulated wallet.
//
// Both executors satisfy Executor and Wallet, so the coordinator can run the
// same cycle in simulation and real mode.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"cryptobot/internal/model"
)

// Executor places a market order and reports how it filled.
type Executor interface {
	Place(ctx context.Context, o model.Order) (model.Fill, error)
}

// Wallet reports available balances.
type Wallet interface {
	Balance(ctx context.Context, symbol string) (float64, error)
}

// OrderAPI is the slice of the exchange client LiveExecutor needs.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, o model.Order) (model.Fill, error)
	Balance(ctx context.Context, symbol string) (float64, error)
}

// InsufficientBalanceError is returned before any order is sent when the
// wallet cannot cover it.
type InsufficientBalanceError struct {
	Symbol string
	Need   float64
	Have   float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %.8f, have %.8f", e.Symbol, e.Need, e.Have)
}

// ErrInvalidOrder is returned for orders with a non-positive size or price.
var ErrInvalidOrder = errors.New("invalid order")

func validate(o model.Order) error {
	switch o.Side {
	case model.SideBuy:
		if o.AmountQuote <= 0 {
			return errors.Wrapf(ErrInvalidOrder, "buy amountQuote %.8f", o.AmountQuote)
		}
	case model.SideSell:
		if o.Amount <= 0 {
			return errors.Wrapf(ErrInvalidOrder, "sell amount %.8f", o.Amount)
		}
	default:
		return errors.Wrapf(ErrInvalidOrder, "side %q", o.Side)
	}
	return nil
}

// LiveExecutor sends orders to the exchange.
type LiveExecutor struct {
	api OrderAPI
	log *slog.Logger
}

// NewLiveExecutor wraps an exchange client.
func NewLiveExecutor(api OrderAPI, log *slog.Logger) *LiveExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &LiveExecutor{api: api, log: log}
}

// Place validates and submits the order.
func (l *LiveExecutor) Place(ctx context.Context, o model.Order) (model.Fill, error) {
	if err := validate(o); err != nil {
		return model.Fill{}, err
	}
	fill, err := l.api.PlaceOrder(ctx, o)
	if err != nil {
		l.log.Error("order failed", "market", o.Market, "side", o.Side, "err", err)
		return model.Fill{}, err
	}
	fill.Simulated = false
	return fill, nil
}

// Balance returns the exchange balance of symbol.
func (l *LiveExecutor) Balance(ctx context.Context, symbol string) (float64, error) {
	return l.api.Balance(ctx, symbol)
}
