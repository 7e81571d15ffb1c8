package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"papertraderv1/internal/events"
	"papertraderv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type fakeConn struct {
	mu      sync.Mutex
	text    [][]byte // text frames written by the client
	inbound chan []byte
	broken  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		broken:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return 1, data, nil
	case <-c.broken:
		return 0, nil, errors.New("connection reset")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.broken:
		return errors.New("write on broken connection")
	default:
	}
	if messageType == 1 {
		c.mu.Lock()
		cp := make([]byte, len(data))
		copy(cp, data)
		c.text = append(c.text, cp)
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.broken) })
	return nil
}

// fail severs the transport, as a remote close would.
func (c *fakeConn) fail() { c.Close() }

func (c *fakeConn) textFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.text))
	copy(out, c.text)
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	calls    int
	failAll  bool
	failNext int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func newTestClient(dialer *fakeDialer, bus *events.Bus) (*Client, *[]time.Duration) {
	cfg := Config{
		URL:                   "ws://feed.test/websocket",
		MaxReconnectAttempts:  5,
		BaseReconnectInterval: 100 * time.Millisecond,
		KeepaliveInterval:     time.Hour, // keep the keepalive quiet in tests
		DialTimeout:           time.Second,
	}
	c := NewClient(cfg, bus)
	c.Dialer = dialer

	var mu sync.Mutex
	var delays []time.Duration
	c.sleep = func(d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}
	return c, &delays
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeSubscribeFrame(t *testing.T, data []byte) []string {
	t.Helper()
	var frame []map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("subscribe frame not JSON: %v", err)
	}
	if len(frame) < 2 {
		t.Fatalf("subscribe frame has %d elements, want ticket + filters", len(frame))
	}
	if _, ok := frame[0]["ticket"]; !ok {
		t.Error("first frame element missing ticket")
	}
	var codes []string
	for _, raw := range frame[1]["codes"].([]interface{}) {
		codes = append(codes, raw.(string))
	}
	return codes
}

// ────────────────────────────────────────────────────────────
// Reconnect protocol
// ────────────────────────────────────────────────────────────

func TestConnect_ExhaustsAfterBoundedAttempts(t *testing.T) {
	dialer := &fakeDialer{failAll: true}
	c, delays := newTestClient(dialer, nil)

	c.Connect()
	waitFor(t, "exhausted state", func() bool { return c.State() == StateExhausted })

	if got := dialer.dialCount(); got != 5 {
		t.Errorf("dial attempts = %d, want exactly 5", got)
	}

	// Four delays between five attempts, strictly increasing: base × 1..4.
	if len(*delays) != 4 {
		t.Fatalf("sleep count = %d, want 4", len(*delays))
	}
	for i, d := range *delays {
		want := 100 * time.Millisecond * time.Duration(i+1)
		if d != want {
			t.Errorf("delay[%d] = %v, want %v", i, d, want)
		}
		if i > 0 && d <= (*delays)[i-1] {
			t.Errorf("delay[%d] = %v not strictly greater than previous %v", i, d, (*delays)[i-1])
		}
	}
}

func TestConnect_ExhaustedRequiresExplicitReconnect(t *testing.T) {
	dialer := &fakeDialer{failAll: true}
	c, _ := newTestClient(dialer, nil)

	c.Connect()
	waitFor(t, "exhausted state", func() bool { return c.State() == StateExhausted })
	attempts := dialer.dialCount()

	// No spontaneous retry after exhaustion.
	time.Sleep(20 * time.Millisecond)
	if dialer.dialCount() != attempts {
		t.Fatal("client kept dialing after exhaustion")
	}

	dialer.mu.Lock()
	dialer.failAll = false
	dialer.mu.Unlock()

	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })
}

func TestConnect_NoOpWhileConnected(t *testing.T) {
	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, nil)

	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	c.Connect()
	c.Connect()
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial attempts = %d after repeated Connect, want 1", got)
	}
}

func TestReadError_ReconnectsAndResubscribes(t *testing.T) {
	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, nil)

	c.Subscribe("KRW-BTC", "KRW-ETH")
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	dialer.conn(0).fail()
	waitFor(t, "reconnect", func() bool { return dialer.dialCount() == 2 && c.State() == StateConnected })

	conn := dialer.conn(1)
	waitFor(t, "resubscribe frame", func() bool { return len(conn.textFrames()) > 0 })

	codes := decodeSubscribeFrame(t, conn.textFrames()[0])
	if len(codes) != 2 || codes[0] != "KRW-BTC" || codes[1] != "KRW-ETH" {
		t.Errorf("resubscribed codes = %v, want full prior set", codes)
	}
}

// ────────────────────────────────────────────────────────────
// Subscriptions
// ────────────────────────────────────────────────────────────

func TestSubscribe_BuffersAndTriggersConnect(t *testing.T) {
	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, nil)

	c.Subscribe("KRW-BTC")
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	conn := dialer.conn(0)
	waitFor(t, "subscribe frame", func() bool { return len(conn.textFrames()) > 0 })
	codes := decodeSubscribeFrame(t, conn.textFrames()[0])
	if len(codes) != 1 || codes[0] != "KRW-BTC" {
		t.Errorf("codes = %v, want [KRW-BTC]", codes)
	}
}

func TestSubscribe_ResendsWholeSet(t *testing.T) {
	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, nil)

	c.Subscribe("KRW-BTC")
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })
	conn := dialer.conn(0)
	waitFor(t, "initial frame", func() bool { return len(conn.textFrames()) > 0 })

	if err := c.Subscribe("KRW-ETH"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	frames := conn.textFrames()
	codes := decodeSubscribeFrame(t, frames[len(frames)-1])
	if len(codes) != 2 || codes[0] != "KRW-BTC" || codes[1] != "KRW-ETH" {
		t.Errorf("codes = %v, want whole replaced set [KRW-BTC KRW-ETH]", codes)
	}

	if err := c.Unsubscribe("KRW-BTC"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	frames = conn.textFrames()
	codes = decodeSubscribeFrame(t, frames[len(frames)-1])
	if len(codes) != 1 || codes[0] != "KRW-ETH" {
		t.Errorf("codes after unsubscribe = %v, want [KRW-ETH]", codes)
	}
}

func TestDisconnect_IdempotentAndClearsSubscriptions(t *testing.T) {
	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, nil)

	c.Subscribe("KRW-BTC")
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	c.Disconnect()
	c.Disconnect() // must be safe when already disconnected

	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Errorf("subscriptions = %v after disconnect, want empty", subs)
	}

	// Reconnecting after disconnect does not resurrect old subscriptions.
	c.Connect()
	waitFor(t, "reconnected", func() bool { return c.State() == StateConnected })
	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Errorf("subscriptions = %v after reconnect, want empty", subs)
	}
}

// ────────────────────────────────────────────────────────────
// Inbound dispatch
// ────────────────────────────────────────────────────────────

func TestDispatch_TickerPublishedOnBus(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.TopicTicker, 4)
	defer sub.Close()

	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, bus)
	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	dialer.conn(0).inbound <- []byte(`{"type":"ticker","code":"KRW-BTC","trade_price":50000000,` +
		`"opening_price":49500000,"high_price":50500000,"low_price":49000000,` +
		`"prev_closing_price":49400000,"signed_change_rate":0.0121,` +
		`"acc_trade_volume_24h":1234.5,"timestamp":1700000000000}`)

	select {
	case ev := <-sub.C:
		tk, ok := ev.Payload.(model.Ticker)
		if !ok {
			t.Fatalf("payload type %T, want model.Ticker", ev.Payload)
		}
		if tk.Code != "KRW-BTC" || tk.TradePrice != 50000000 {
			t.Errorf("ticker = %+v", tk)
		}
		if tk.TS.IsZero() {
			t.Error("ticker timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("ticker not published")
	}
}

func TestDispatch_OrderBookPublishedOnBus(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.TopicOrderBook, 4)
	defer sub.Close()

	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, bus)
	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	dialer.conn(0).inbound <- []byte(`{"type":"orderbook","code":"KRW-ETH",` +
		`"total_ask_size":10,"total_bid_size":12,"orderbook_units":` +
		`[{"ask_price":3010000,"bid_price":3000000,"ask_size":1,"bid_size":2}],` +
		`"timestamp":1700000000000}`)

	select {
	case ev := <-sub.C:
		ob, ok := ev.Payload.(model.OrderBook)
		if !ok {
			t.Fatalf("payload type %T, want model.OrderBook", ev.Payload)
		}
		if ob.Code != "KRW-ETH" || len(ob.Units) != 1 || ob.Units[0].AskPrice != 3010000 {
			t.Errorf("orderbook = %+v", ob)
		}
	case <-time.After(time.Second):
		t.Fatal("orderbook not published")
	}
}

func TestDispatch_SwallowsKeepaliveAndUnknownFrames(t *testing.T) {
	bus := events.NewBus()
	tick := bus.Subscribe(events.TopicTicker, 4)
	defer tick.Close()

	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, bus)
	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	conn := dialer.conn(0)
	conn.inbound <- []byte(`{"status":"UP"}`)
	conn.inbound <- []byte(`{"type":"trade","code":"KRW-BTC"}`)
	conn.inbound <- []byte(`not json at all`)

	time.Sleep(20 * time.Millisecond)
	select {
	case ev := <-tick.C:
		t.Fatalf("unexpected publish %+v for keepalive/unknown frame", ev)
	default:
	}
	if c.State() != StateConnected {
		t.Errorf("state = %s after noise frames, want connected", c.State())
	}
}

func TestFeedState_TransitionsPublished(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.TopicFeedState, 8)
	defer sub.Close()

	dialer := &fakeDialer{failNext: 1}
	c, _ := newTestClient(dialer, bus)
	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	var states []State
	for len(states) < 2 {
		select {
		case ev := <-sub.C:
			states = append(states, ev.Payload.(StateChange).State)
		case <-time.After(time.Second):
			t.Fatalf("only saw states %v", states)
		}
	}
	if states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("states = %v, want [connecting connected]", states)
	}
}

func TestFeedState_ReconnectCarriesAttemptNumber(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.TopicFeedState, 16)
	defer sub.Close()

	dialer := &fakeDialer{}
	c, _ := newTestClient(dialer, bus)
	c.Connect()
	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })

	dialer.conn(0).fail()
	waitFor(t, "reconnect", func() bool { return dialer.dialCount() >= 2 && c.State() == StateConnected })

	var changes []StateChange
drain:
	for {
		select {
		case ev := <-sub.C:
			changes = append(changes, ev.Payload.(StateChange))
		case <-time.After(50 * time.Millisecond):
			break drain
		}
	}

	// The initial connecting event is an explicit Connect (attempt 0); the
	// one after the severed transport must announce the reconnect attempt.
	reconnects := 0
	for _, ch := range changes {
		if ch.State == StateConnecting && ch.Attempt > 0 {
			reconnects++
		}
	}
	if reconnects != 1 {
		t.Errorf("connecting events with attempt > 0 = %d, want 1 (changes: %+v)", reconnects, changes)
	}
}
