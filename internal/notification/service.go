package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"papertraderv1/internal/events"
	"papertraderv1/internal/feed"
	"papertraderv1/internal/model"
)

// Service forwards order fills and feed state transitions from the event
// bus to the configured notifier. Delivery failures are logged, never
// propagated: notifications are best-effort.
type Service struct {
	notifier Notifier
}

// NewService creates a Service sending through n.
func NewService(n Notifier) *Service {
	return &Service{notifier: n}
}

// Run consumes bus events until ctx is cancelled. Blocks; run in its own
// goroutine.
func (s *Service) Run(ctx context.Context, bus *events.Bus) {
	fills := bus.Subscribe(events.TopicFills, 32)
	states := bus.Subscribe(events.TopicFeedState, 8)
	defer fills.Close()
	defer states.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fills.C:
			if !ok {
				return
			}
			if trade, ok := ev.Payload.(model.Trade); ok {
				s.send(ctx, fillAlert(trade))
			}
		case ev, ok := <-states.C:
			if !ok {
				return
			}
			if change, ok := ev.Payload.(feed.StateChange); ok {
				s.send(ctx, stateAlert(change))
			}
		}
	}
}

func (s *Service) send(ctx context.Context, alert Alert) {
	if err := s.notifier.Send(ctx, alert); err != nil {
		log.Printf("[notify] delivery failed: %v", err)
	}
}

func fillAlert(t model.Trade) Alert {
	return Alert{
		Level: AlertInfo,
		Event: "order_fill",
		Code:  t.Code,
		Title: fmt.Sprintf("Order filled: %s %s", t.Side, t.Code),
		Message: fmt.Sprintf("%s %.8f %s at %.0f (total %.0f, fee %.2f)",
			t.Side, t.Quantity, t.Code, t.Price, t.TotalAmount, t.Fee),
		At: t.Timestamp,
	}
}

func stateAlert(c feed.StateChange) Alert {
	level := AlertInfo
	switch c.State {
	case feed.StateExhausted:
		level = AlertCritical
	case feed.StateConnecting:
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Event:   "feed_state",
		Title:   fmt.Sprintf("Feed %s", c.State),
		Message: fmt.Sprintf("feed connection state changed to %s (attempt %d)", c.State, c.Attempt),
		At:      time.Now().UTC(),
	}
}
