package exchangeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"cryptobot/internal/model"
)

// ErrNoPrice is returned by TickerPrice when the payload has no usable price.
var ErrNoPrice = errors.New("ticker price unavailable")

// Candles fetches up to limit candles of one interval, oldest first.
func (c *Client) Candles(ctx context.Context, market, interval string, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	// Encode() sorts keys; interval < limit keeps the documented order.
	v, err := c.requestArray(ctx, http.MethodGet, url.PathEscape(market)+"/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return ParseCandles(v)
}

// TickerPrice returns the last traded price of market.
func (c *Client) TickerPrice(ctx context.Context, market string) (float64, error) {
	v, err := c.Request(ctx, http.MethodGet, "ticker/price?market="+url.QueryEscape(market), nil)
	if err != nil {
		return 0, err
	}
	price, ok := floatField(v.Get("price"))
	if !ok || price <= 0 {
		return 0, ErrNoPrice
	}
	return price, nil
}

// Balances returns every asset balance on the account.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	v, err := c.requestArray(ctx, http.MethodGet, "balance", nil)
	if err != nil {
		return nil, err
	}
	items, err := v.Array()
	if err != nil {
		return nil, errors.Wrap(err, "balance payload is not an array")
	}
	out := make([]model.Balance, 0, len(items))
	for _, it := range items {
		sym := string(it.GetStringBytes("symbol"))
		if sym == "" {
			continue
		}
		avail, _ := floatField(it.Get("available"))
		inOrder, _ := floatField(it.Get("inOrder"))
		out = append(out, model.Balance{Symbol: sym, Available: avail, InOrder: inOrder})
	}
	return out, nil
}

// Balance returns the available amount of symbol, 0 when the account holds none.
func (c *Client) Balance(ctx context.Context, symbol string) (float64, error) {
	all, err := c.Balances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range all {
		if b.Symbol == symbol {
			return b.Available, nil
		}
	}
	return 0, nil
}

type orderRequest struct {
	Market      string `json:"market"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	AmountQuote string `json:"amountQuote,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Order amounts are truncated, never rounded up, so a sell of the whole
// balance or a buy of all fiat never asks for more than the account holds.
const (
	amountDecimals      = 8
	amountQuoteDecimals = 2
)

// PlaceOrder submits a market order. Buys are sized by AmountQuote, sells by
// Amount. The fill price is taken from the response fills when present and
// falls back to the order's RefPrice; the fallback quantity is derived from
// the amount actually sent.
func (c *Client) PlaceOrder(ctx context.Context, o model.Order) (model.Fill, error) {
	req := orderRequest{Market: o.Market, Side: string(o.Side), OrderType: "market"}
	var sent float64
	switch o.Side {
	case model.SideBuy:
		d := decimal.NewFromFloat(o.AmountQuote).Truncate(amountQuoteDecimals)
		req.AmountQuote = d.StringFixed(amountQuoteDecimals)
		sent, _ = d.Float64()
	case model.SideSell:
		d := decimal.NewFromFloat(o.Amount).Truncate(amountDecimals)
		req.Amount = d.StringFixed(amountDecimals)
		sent, _ = d.Float64()
	default:
		return model.Fill{}, fmt.Errorf("unknown order side %q", o.Side)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return model.Fill{}, errors.Wrap(err, "encode order")
	}

	v, err := c.Request(ctx, http.MethodPost, "order", body)
	if err != nil {
		return model.Fill{}, err
	}

	fill := model.Fill{
		OrderID:  string(v.GetStringBytes("orderId")),
		Market:   o.Market,
		Side:     o.Side,
		FilledAt: c.now().UTC(),
	}
	qty, _ := floatField(v.Get("filledAmount"))
	quote, _ := floatField(v.Get("filledAmountQuote"))
	switch {
	case qty > 0 && quote > 0:
		fill.Quantity = qty
		fill.Price = quote / qty
	case o.Side == model.SideBuy && o.RefPrice > 0:
		fill.Price = o.RefPrice
		fill.Quantity = sent / o.RefPrice
	case o.Side == model.SideSell:
		fill.Price = o.RefPrice
		fill.Quantity = sent
	}
	c.logger.Info("order placed",
		"order_id", fill.OrderID, "market", o.Market, "side", o.Side,
		"quantity", fill.Quantity, "price", fill.Price)
	return fill, nil
}

// ServerTime returns the exchange clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	v, err := c.Request(ctx, http.MethodGet, "time", nil)
	if err != nil {
		return time.Time{}, err
	}
	ms, ok := int64Field(v.Get("time"))
	if !ok {
		return time.Time{}, errors.New("time payload has no time field")
	}
	return time.UnixMilli(ms).UTC(), nil
}
