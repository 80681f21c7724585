// Package notification delivers trade alerts to external channels
// (Telegram, webhooks) and to the structured log.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"cryptobot/internal/logger"
	"cryptobot/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Trade is set for fills so
// backends can render the fill instead of the flat Message.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Trade   *Trade     `json:"trade,omitempty"`
}

// Trade is one fill as reported to operators. PnL and TotalPnL only mean
// something for sells.
type Trade struct {
	Market    string     `json:"market"`
	Side      model.Side `json:"side"`
	Quantity  float64    `json:"quantity"`
	Price     float64    `json:"price"`
	PnL       float64    `json:"pnl"`
	TotalPnL  float64    `json:"total_pnl"`
	Simulated bool       `json:"simulated"`
}

// Mode is "SIMULATION" or "REAL".
func (t Trade) Mode() string {
	if t.Simulated {
		return "SIMULATION"
	}
	return "REAL"
}

// Closing reports whether the fill closed a position.
func (t Trade) Closing() bool { return t.Side == model.SideSell }

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a slog.Logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger means slog.Default().
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	args := logger.LogWithCycle(ctx)
	if tr := alert.Trade; tr != nil {
		args = append(args, "mode", tr.Mode(), "market", tr.Market, "side", tr.Side,
			"quantity", tr.Quantity, "price", tr.Price)
		if tr.Closing() {
			args = append(args, "pnl", tr.PnL, "total_pnl", tr.TotalPnL)
		}
	} else {
		args = append(args, "message", alert.Message)
	}
	n.log.Log(ctx, level, alert.Title, args...)
	return nil
}

// Multi sends every alert to all of its notifiers. A failing backend does not
// stop the others; the combined error is returned.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Send(ctx, alert))
	}
	return err
}

// TradeAlert describes a fill. For sells pnl and total are included; a
// losing sell is a warning.
func TradeAlert(f model.Fill, pnl, total float64) Alert {
	tr := &Trade{
		Market:    f.Market,
		Side:      f.Side,
		Quantity:  f.Quantity,
		Price:     f.Price,
		Simulated: f.Simulated,
	}
	side := strings.ToUpper(string(f.Side))
	msg := fmt.Sprintf("[%s] %s %.8f %s @ %.2f", tr.Mode(), side, f.Quantity, f.Market, f.Price)
	level := AlertInfo
	if tr.Closing() {
		tr.PnL, tr.TotalPnL = pnl, total
		msg += fmt.Sprintf(" | P/L %.2f | total %.2f", pnl, total)
		if pnl < 0 {
			level = AlertWarning
		}
	}
	return Alert{Level: level, Title: side + " " + f.Market, Message: msg, Trade: tr}
}
