package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"papertraderv1/internal/events"
	"papertraderv1/internal/feed"
	"papertraderv1/internal/model"
)

type captureNotifier struct {
	mu       sync.Mutex
	alerts   []Alert
	attempts int
	err      error
}

func (c *captureNotifier) Send(_ context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureNotifier) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *captureNotifier) snapshot() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func waitForAlerts(t *testing.T, c *captureNotifier, n int) []Alert {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if alerts := c.snapshot(); len(alerts) >= n {
			return alerts
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d alerts, have %d", n, len(c.snapshot()))
	return nil
}

func TestService_ForwardsFills(t *testing.T) {
	bus := events.NewBus()
	capture := &captureNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewService(capture).Run(ctx, bus)

	// Give the service a moment to subscribe before publishing.
	waitForSubscriber(t, bus, events.TopicFills)
	bus.Publish(events.TopicFills, model.Trade{
		Code: "KRW-BTC", Side: model.SideBuy, Price: 50_000_000,
		Quantity: 0.01, TotalAmount: 500_000, Fee: 250,
	})

	alerts := waitForAlerts(t, capture, 1)
	if alerts[0].Level != AlertInfo || !strings.Contains(alerts[0].Title, "KRW-BTC") {
		t.Errorf("fill alert = %+v", alerts[0])
	}
}

func TestService_FeedExhaustionIsCritical(t *testing.T) {
	bus := events.NewBus()
	capture := &captureNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewService(capture).Run(ctx, bus)

	waitForSubscriber(t, bus, events.TopicFeedState)
	bus.Publish(events.TopicFeedState, feed.StateChange{State: feed.StateExhausted, Attempt: 5})

	alerts := waitForAlerts(t, capture, 1)
	if alerts[0].Level != AlertCritical {
		t.Errorf("exhausted feed alert level = %s, want critical", alerts[0].Level)
	}
}

func TestService_DeliveryFailureDoesNotStopConsumption(t *testing.T) {
	bus := events.NewBus()
	capture := &captureNotifier{err: errors.New("endpoint down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewService(capture).Run(ctx, bus)

	waitForSubscriber(t, bus, events.TopicFills)
	bus.Publish(events.TopicFills, model.Trade{Code: "KRW-BTC"})

	// Only clear the failure once the first delivery has actually been
	// attempted and refused.
	waitFor := time.Now().Add(2 * time.Second)
	for capture.attemptCount() == 0 && time.Now().Before(waitFor) {
		time.Sleep(time.Millisecond)
	}
	if capture.attemptCount() == 0 {
		t.Fatal("first delivery attempt never happened")
	}

	capture.mu.Lock()
	capture.err = nil
	capture.mu.Unlock()
	bus.Publish(events.TopicFills, model.Trade{Code: "KRW-ETH"})

	alerts := waitForAlerts(t, capture, 1)
	if !strings.Contains(alerts[0].Title, "KRW-ETH") {
		t.Errorf("alert after recovery = %+v", alerts[0])
	}
}

func waitForSubscriber(t *testing.T, bus *events.Bus, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.SubscriberCount(topic) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on %s", topic)
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level: AlertInfo, Event: "order_fill", Code: "KRW-BTC",
		Title: "Order filled: buy KRW-BTC", Message: "buy 0.01 at 50000000",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, want := range []string{
		`"source":"papertrader"`,
		`"event":"order_fill"`,
		`"code":"KRW-BTC"`,
		`"severity":"INFO"`,
		`"title":"Order filled: buy KRW-BTC"`,
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("posted body missing %s: %s", want, gotBody)
		}
	}
}

func TestTelegramFormat_TagsInstrumentAndEscapes(t *testing.T) {
	msg := formatMessage(Alert{
		Level: AlertCritical, Event: "feed_state", Code: "KRW-BTC",
		Title: "Feed exhausted", Message: "state changed (attempt 5)",
	})
	if !strings.Contains(msg, "🚨") {
		t.Error("critical alert missing siren headline")
	}
	if !strings.Contains(msg, "`KRW-BTC`") {
		t.Errorf("message does not tag the instrument: %q", msg)
	}
	if !strings.Contains(msg, `\(attempt 5\)`) {
		t.Errorf("reserved characters not escaped: %q", msg)
	}
}

func TestWebhookNotifier_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Title: "t"}); err == nil {
		t.Fatal("expected error on 502 response")
	}
}
