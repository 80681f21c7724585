package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/logger"
	"cryptobot/internal/model"
)

func TestTradeAlert(t *testing.T) {
	buy := TradeAlert(model.Fill{Market: "BTC-EUR", Side: model.SideBuy, Price: 50000, Quantity: 0.005, Simulated: true}, 0, 0)
	assert.Equal(t, AlertInfo, buy.Level)
	assert.Equal(t, "BUY BTC-EUR", buy.Title)
	assert.Equal(t, "[SIMULATION] BUY 0.00500000 BTC-EUR @ 50000.00", buy.Message)

	sell := TradeAlert(model.Fill{Market: "BTC-EUR", Side: model.SideSell, Price: 49000, Quantity: 0.005}, -5, 45)
	assert.Equal(t, AlertWarning, sell.Level)
	assert.Contains(t, sell.Message, "[REAL] SELL")
	assert.Contains(t, sell.Message, "P/L -5.00 | total 45.00")
	require.NotNil(t, sell.Trade)
	assert.Equal(t, -5.0, sell.Trade.PnL)
	assert.Equal(t, 45.0, sell.Trade.TotalPnL)
	assert.Equal(t, "REAL", sell.Trade.Mode())
}

func TestWebhookNotifier_PostsTradeFields(t *testing.T) {
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var m map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		got = append(got, m)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()
	require.NoError(t, n.Send(ctx, TradeAlert(model.Fill{Market: "BTC-EUR", Side: model.SideSell, Price: 49000, Quantity: 0.005}, 0, 45)))
	require.NoError(t, n.Send(ctx, Alert{Level: AlertCritical, Title: "auth", Message: "key rejected"}))
	require.Len(t, got, 2)

	sell := got[0]
	assert.Equal(t, "INFO", sell["level"])
	assert.Equal(t, "REAL", sell["mode"])
	assert.Equal(t, "BTC-EUR", sell["market"])
	assert.Equal(t, "sell", sell["side"])
	assert.Equal(t, 0.005, sell["quantity"])
	assert.Equal(t, 49000.0, sell["price"])
	assert.Equal(t, 0.0, sell["pnl"], "break-even sells still report P/L")
	assert.Equal(t, 45.0, sell["total_pnl"])
	assert.Equal(t, "2024-01-02T03:04:05Z", sell["ts"])

	plain := got[1]
	assert.Equal(t, "CRITICAL", plain["level"])
	assert.Equal(t, "auth", plain["title"])
	assert.NotContains(t, plain, "market")
	assert.NotContains(t, plain, "pnl")
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()
	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "webhook: unexpected status 502: upstream down")
}

func TestTelegramNotifier_RendersFill(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	fill := model.Fill{Market: "BTC-EUR", Side: model.SideSell, Price: 49000, Quantity: 0.005, Simulated: true}
	require.NoError(t, n.Send(context.Background(), TradeAlert(fill, -5, 45)))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	assert.Equal(t, "🔴 *SELL BTC\\-EUR* \\(simulation\\)\n"+
		"Quantity: 0\\.00500000\n"+
		"Price: 49000\\.00\n"+
		"P/L: \\-5\\.00\n"+
		"Total P/L: 45\\.00", body["text"])
}

func TestTelegramText_PlainAlert(t *testing.T) {
	text := telegramText(Alert{Level: AlertCritical, Title: "auth failed", Message: "key_rejected (401)!"})
	assert.Equal(t, "🚨 *auth failed*\n\nkey\\_rejected \\(401\\)\\!", text)

	buy := telegramText(TradeAlert(model.Fill{Market: "ETH-EUR", Side: model.SideBuy, Price: 2000, Quantity: 0.1}, 0, 0))
	assert.True(t, strings.HasPrefix(buy, "🟢 *BUY ETH\\-EUR* \\(real\\)\n"))
	assert.NotContains(t, buy, "P/L")
}

func TestLogNotifier_CarriesCycleAndTrade(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := logger.WithCycleID(context.Background(), "BTC-EUR-7-1709294400000")

	require.NoError(t, n.Send(ctx, TradeAlert(model.Fill{Market: "BTC-EUR", Side: model.SideSell, Price: 49000, Quantity: 0.005}, 12.5, 40)))
	out := buf.String()
	assert.Contains(t, out, "cycle_id=BTC-EUR-7-1709294400000")
	assert.Contains(t, out, "side=sell")
	assert.Contains(t, out, "pnl=12.5")
	assert.Contains(t, out, "total_pnl=40")
	assert.NotContains(t, out, "message=")
}

type failingNotifier struct{ err error }

func (f failingNotifier) Send(context.Context, Alert) error { return f.err }

func TestMulti_CombinesErrors(t *testing.T) {
	var buf bytes.Buffer
	logged := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	e1, e2 := errors.New("first"), errors.New("second")

	err := Multi{failingNotifier{e1}, logged, failingNotifier{e2}}.Send(context.Background(), Alert{Level: AlertWarning, Title: "hello"})
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "hello")

	assert.NoError(t, Multi{logged}.Send(context.Background(), Alert{Title: "ok"}))
}
