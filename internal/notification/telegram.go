package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
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
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
		// Minor events are delivered silently.
		"disable_notification": alert.Level == AlertInfo,
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, apiErr.Description)
		}
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent alert %s", alert.ID)
	return nil
}

// telegramText renders the alert headline plus, for fired events, the
// ticker, amount and the position of the event in the log.
func telegramText(alert Alert) string {
	emoji := "🎆"
	switch alert.Level {
	case AlertWarning:
		emoji = "💥"
	case AlertCritical:
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	if n := alert.Notice; n != nil {
		fmt.Fprintf(&b, "\n\nTicker: `%s`\nAmount: *%s*\nEvent: %s",
			escapeMarkdown(n.Event.Ticker), escapeMarkdown(n.Amount), escapeMarkdown(fmt.Sprintf("#%d", n.Index)))
	}
	return b.String()
}

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
