package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint. Fills carry
// their trade fields at the top level so receivers need not parse Message.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}, now: time.Now}
}

type webhookPayload struct {
	Level    AlertLevel `json:"level"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	TS       string     `json:"ts"`
	Mode     string     `json:"mode,omitempty"`
	Market   string     `json:"market,omitempty"`
	Side     string     `json:"side,omitempty"`
	Quantity float64    `json:"quantity,omitempty"`
	Price    float64    `json:"price,omitempty"`
	PnL      *float64   `json:"pnl,omitempty"`
	TotalPnL *float64   `json:"total_pnl,omitempty"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		TS:      w.now().UTC().Format(time.RFC3339Nano),
	}
	if tr := alert.Trade; tr != nil {
		p.Mode, p.Market, p.Side = tr.Mode(), tr.Market, string(tr.Side)
		p.Quantity, p.Price = tr.Quantity, tr.Price
		if tr.Closing() {
			pnl, total := tr.PnL, tr.TotalPnL
			p.PnL, p.TotalPnL = &pnl, &total
		}
	}
	return errors.Wrap(postJSON(ctx, w.client, w.url, p), "webhook")
}

// postJSON sends v and fails on any non-2xx answer, quoting the start of the
// response body.
func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
