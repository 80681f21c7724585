package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/logger"
	"cryptobot/internal/model"
)

func TestPaper_BuyThenSell(t *testing.T) {
	p := NewPaperExecutor("BTC-EUR", 0, 0, logger.Discard())
	ctx := context.Background()

	fiat, _ := p.Balance(ctx, "EUR")
	require.Equal(t, 1000.0, fiat)

	buy, err := p.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideBuy, AmountQuote: 250, RefPrice: 50000})
	require.NoError(t, err)
	assert.True(t, buy.Simulated)
	assert.Equal(t, "PAPER-1", buy.OrderID)
	assert.InDelta(t, 0.005, buy.Quantity, 1e-12)

	fiat, crypto := p.Balances()
	assert.InDelta(t, 750, fiat, 1e-9)
	assert.InDelta(t, 0.005, crypto, 1e-12)

	sell, err := p.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideSell, Amount: crypto, RefPrice: 60000})
	require.NoError(t, err)
	assert.InDelta(t, 60000, sell.Price, 1e-9)

	fiat, crypto = p.Balances()
	assert.InDelta(t, 1050, fiat, 1e-9)
	assert.Zero(t, crypto)
	assert.InDelta(t, 5.0, p.PerformancePct(60000), 1e-9)
	assert.Len(t, p.GetFills(), 2)
}

func TestPaper_InsufficientBalanceLeavesWallet(t *testing.T) {
	p := NewPaperExecutor("BTC-EUR", 100, 0, logger.Discard())
	ctx := context.Background()

	_, err := p.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideBuy, AmountQuote: 150, RefPrice: 10})
	var ib *InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, "EUR", ib.Symbol)

	_, err = p.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideSell, Amount: 1, RefPrice: 10})
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, "BTC", ib.Symbol)

	fiat, crypto := p.Balances()
	assert.Equal(t, 100.0, fiat)
	assert.Zero(t, crypto)
	assert.Empty(t, p.GetFills())
}

func TestPaper_Slippage(t *testing.T) {
	p := NewPaperExecutor("ETH-EUR", 1000, 10, logger.Discard()) // 0.1%
	fill, err := p.Place(context.Background(), model.Order{Market: "ETH-EUR", Side: model.SideBuy, AmountQuote: 100.1, RefPrice: 100})
	require.NoError(t, err)
	assert.InDelta(t, 100.1, fill.Price, 1e-9)
	assert.InDelta(t, 1.0, fill.Quantity, 1e-9)
}

func TestPaper_RejectsInvalid(t *testing.T) {
	p := NewPaperExecutor("BTC-EUR", 0, 0, logger.Discard())
	ctx := context.Background()
	for _, o := range []model.Order{
		{Side: model.SideBuy, AmountQuote: 0, RefPrice: 1},
		{Side: model.SideSell, Amount: -1, RefPrice: 1},
		{Side: model.SideBuy, AmountQuote: 1, RefPrice: 0},
		{Side: "hold", RefPrice: 1},
	} {
		_, err := p.Place(ctx, o)
		assert.ErrorIs(t, err, ErrInvalidOrder, "%+v", o)
	}
}

type fakeAPI struct {
	placed  []model.Order
	balance map[string]float64
	err     error
}

func (f *fakeAPI) PlaceOrder(_ context.Context, o model.Order) (model.Fill, error) {
	if f.err != nil {
		return model.Fill{}, f.err
	}
	f.placed = append(f.placed, o)
	return model.Fill{OrderID: "x1", Market: o.Market, Side: o.Side, Price: o.RefPrice, Quantity: o.AmountQuote / o.RefPrice, Simulated: true}, nil
}

func (f *fakeAPI) Balance(_ context.Context, s string) (float64, error) { return f.balance[s], nil }

func TestLive_PassesThrough(t *testing.T) {
	api := &fakeAPI{balance: map[string]float64{"EUR": 42}}
	l := NewLiveExecutor(api, logger.Discard())
	ctx := context.Background()

	fill, err := l.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideBuy, AmountQuote: 20, RefPrice: 10})
	require.NoError(t, err)
	assert.False(t, fill.Simulated)
	assert.Len(t, api.placed, 1)

	_, err = l.Place(ctx, model.Order{Market: "BTC-EUR", Side: model.SideSell})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Len(t, api.placed, 1, "invalid order must not reach the API")

	bal, err := l.Balance(ctx, "EUR")
	require.NoError(t, err)
	assert.Equal(t, 42.0, bal)
}

func TestJournal_RecordAndRead(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordFill(TradeEntry{
		Fill:     model.Fill{OrderID: "PAPER-1", Market: "BTC-EUR", Side: model.SideBuy, Price: 50000, Quantity: 0.005, Simulated: true, FilledAt: at},
		Strategy: "BB_RSI_MACD_MTF",
		Reason:   "buy on all frames",
	}))
	require.NoError(t, j.RecordFill(TradeEntry{
		Fill:     model.Fill{OrderID: "PAPER-2", Market: "BTC-EUR", Side: model.SideSell, Price: 60000, Quantity: 0.005, Simulated: true, FilledAt: at.Add(time.Hour)},
		Strategy: "BB_RSI_MACD_MTF",
		PnL:      50,
	}))

	trades, err := j.GetTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "PAPER-2", trades[0].OrderID)
	assert.Equal(t, "sell", trades[0].Side)
	assert.InDelta(t, 50, trades[0].PnL, 1e-9)
	assert.True(t, trades[0].Simulated)
	assert.Equal(t, "2024-03-01T12:00:00Z", trades[1].FilledAt)
}
