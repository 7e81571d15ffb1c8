// Package notification delivers trading alerts (order fills, feed state
// transitions) to external channels: a generic webhook, Telegram, or the
// process log.
package notification

import (
	"context"
	"log"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one outbound notification: an order fill confirmation or a
// feed connection event. Code is the instrument involved, empty for
// account-wide or feed-wide alerts.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Event   string     `json:"event"` // "order_fill", "feed_state"
	Code    string     `json:"code,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.Code != "" {
		log.Printf("[notify] [%s] %s %s: %s", alert.Level, alert.Code, alert.Title, alert.Message)
		return nil
	}
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
