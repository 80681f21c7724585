package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"cryptobot/internal/model"
)

// DefaultStartingFiat is the simulated quote balance a fresh PaperExecutor gets.
const DefaultStartingFiat = 1000.0

// PaperExecutor simulates order execution against an in-memory wallet of one
// market's base and quote assets. Fills happen at the order's reference price,
// adjusted by optional slippage.
type PaperExecutor struct {
	mu       sync.RWMutex
	base     string
	quote    string
	fiat     float64
	crypto   float64
	starting float64
	fills    []model.Fill
	orderSeq int64

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)

	now func() time.Time
	log *slog.Logger
}

// NewPaperExecutor creates a paper wallet for market holding startingFiat of
// the quote asset and nothing of the base asset.
func NewPaperExecutor(market model.Market, startingFiat, slippageBps float64, log *slog.Logger) *PaperExecutor {
	if startingFiat <= 0 {
		startingFiat = DefaultStartingFiat
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaperExecutor{
		base:        market.Base(),
		quote:       market.Quote(),
		fiat:        startingFiat,
		starting:    startingFiat,
		fills:       make([]model.Fill, 0, 64),
		slippageBps: slippageBps,
		now:         time.Now,
		log:         log,
	}
}

// SetClock replaces the clock used for fill timestamps.
func (p *PaperExecutor) SetClock(now func() time.Time) { p.now = now }

// Place fills the order immediately or fails with *InsufficientBalanceError.
// The wallet is untouched on failure.
func (p *PaperExecutor) Place(_ context.Context, o model.Order) (model.Fill, error) {
	if err := validate(o); err != nil {
		return model.Fill{}, err
	}
	if o.RefPrice <= 0 {
		return model.Fill{}, errors.Wrapf(ErrInvalidOrder, "reference price %.8f", o.RefPrice)
	}

	p.mu.Lock()
	price := o.RefPrice
	slip := price * p.slippageBps / 10000
	fill := model.Fill{Market: o.Market, Side: o.Side, Simulated: true}

	switch o.Side {
	case model.SideBuy:
		if p.fiat < o.AmountQuote {
			have := p.fiat
			p.mu.Unlock()
			return model.Fill{}, &InsufficientBalanceError{Symbol: p.quote, Need: o.AmountQuote, Have: have}
		}
		price += slip // buy higher
		fill.Quantity = o.AmountQuote / price
		p.fiat -= o.AmountQuote
		p.crypto += fill.Quantity
	case model.SideSell:
		if p.crypto < o.Amount {
			have := p.crypto
			p.mu.Unlock()
			return model.Fill{}, &InsufficientBalanceError{Symbol: p.base, Need: o.Amount, Have: have}
		}
		price -= slip // sell lower
		fill.Quantity = o.Amount
		p.crypto -= o.Amount
		p.fiat += o.Amount * price
	}

	p.orderSeq++
	fill.OrderID = fmt.Sprintf("PAPER-%d", p.orderSeq)
	fill.Price = price
	fill.FilledAt = p.now().UTC()
	p.fills = append(p.fills, fill)
	fiat, crypto := p.fiat, p.crypto
	p.mu.Unlock()

	p.log.Info("paper fill",
		"order_id", fill.OrderID, "side", fill.Side, "quantity", fill.Quantity,
		"price", fill.Price, "slippage", slip, "fiat", fiat, "crypto", crypto)
	return fill, nil
}

// Balance returns the simulated balance of symbol (0 for foreign symbols).
func (p *PaperExecutor) Balance(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch symbol {
	case p.quote:
		return p.fiat, nil
	case p.base:
		return p.crypto, nil
	}
	return 0, nil
}

// Balances returns the quote and base balances.
func (p *PaperExecutor) Balances() (fiat, crypto float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fiat, p.crypto
}

// StartingFiat returns the initial simulated quote balance.
func (p *PaperExecutor) StartingFiat() float64 { return p.starting }

// TotalValue is fiat + crypto marked at price.
func (p *PaperExecutor) TotalValue(price float64) float64 {
	fiat, crypto := p.Balances()
	return fiat + crypto*price
}

// PerformancePct is the change of TotalValue against the starting balance, in percent.
func (p *PaperExecutor) PerformancePct(price float64) float64 {
	return (p.TotalValue(price)/p.starting - 1) * 100
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
