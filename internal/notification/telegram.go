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

// TelegramNotifier pushes trading alerts to a Telegram chat through the
// Bot API. Fills arrive as info messages; feed exhaustion gets the siren.
type TelegramNotifier struct {
	botToken string
	chatID   string
	httpc    *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and
// target chat/channel ID.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

func severityEmoji(level AlertLevel) string {
	switch level {
	case AlertCritical:
		return "🚨"
	case AlertWarning:
		return "⚠️"
	default:
		return "💰"
	}
}

// formatMessage renders the alert as MarkdownV2: headline, then the
// instrument code in monospace when the alert concerns one, then detail.
func formatMessage(alert Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", severityEmoji(alert.Level), escapeMarkdownV2(alert.Title))
	if alert.Code != "" {
		fmt.Fprintf(&b, "\n`%s`", alert.Code)
	}
	fmt.Fprintf(&b, "\n%s", escapeMarkdownV2(alert.Message))
	return b.String()
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       formatMessage(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: API returned %d", resp.StatusCode)
	}

	log.Printf("[telegram] delivered %s alert: %s", alert.Event, alert.Title)
	return nil
}

// escapeMarkdownV2 backslash-escapes every character MarkdownV2 reserves.
func escapeMarkdownV2(s string) string {
	const reserved = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(reserved, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
