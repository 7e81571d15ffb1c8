package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs one JSON document per alert to a configured
// endpoint, typically a chat-ops relay receiving fill confirmations and
// feed outage notices.
type WebhookNotifier struct {
	endpoint string
	httpc    *http.Client
}

// NewWebhookNotifier creates a notifier posting to endpoint.
func NewWebhookNotifier(endpoint string) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

// webhookPayload is the wire shape receivers depend on; keep it stable.
type webhookPayload struct {
	Source   string `json:"source"`
	Event    string `json:"event"`
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	SentAt   string `json:"sent_at"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	at := alert.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	body, err := json.Marshal(webhookPayload{
		Source:   "papertrader",
		Event:    alert.Event,
		Severity: string(alert.Level),
		Code:     alert.Code,
		Title:    alert.Title,
		Detail:   alert.Message,
		SentAt:   at.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}

	log.Printf("[webhook] delivered %s alert: %s", alert.Event, alert.Title)
	return nil
}
