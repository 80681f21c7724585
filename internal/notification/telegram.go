package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts to one chat via the Bot API, formatted as
// MarkdownV2.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier for one chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := telegramMessage{ChatID: t.chatID, Text: telegramText(alert), ParseMode: "MarkdownV2"}
	url := t.baseURL + "/bot" + t.botToken + "/sendMessage"
	return errors.Wrap(postJSON(ctx, t.client, url, msg), "telegram")
}

// telegramText renders a fill as one field per line; other alerts are a bold
// title over the message.
func telegramText(a Alert) string {
	var b strings.Builder
	if tr := a.Trade; tr != nil {
		icon := "🟢"
		if tr.Closing() {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s *%s* %s\n", icon, mdEscape(a.Title), mdEscape("("+strings.ToLower(tr.Mode())+")"))
		fmt.Fprintf(&b, "Quantity: %s\n", mdEscape(fmt.Sprintf("%.8f", tr.Quantity)))
		fmt.Fprintf(&b, "Price: %s", mdEscape(fmt.Sprintf("%.2f", tr.Price)))
		if tr.Closing() {
			fmt.Fprintf(&b, "\nP/L: %s\nTotal P/L: %s",
				mdEscape(fmt.Sprintf("%.2f", tr.PnL)), mdEscape(fmt.Sprintf("%.2f", tr.TotalPnL)))
		}
		return b.String()
	}

	icon := "ℹ️"
	switch a.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	fmt.Fprintf(&b, "%s *%s*\n\n%s", icon, mdEscape(a.Title), mdEscape(a.Message))
	return b.String()
}

// mdEscape escapes the MarkdownV2 reserved characters.
var mdEscape = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
).Replace
