// Package feed implements the push-feed WebSocket client: connection
// lifecycle, whole-set-replace subscriptions, keepalive, and bounded
// linear-backoff reconnection. Inbound ticker and order-book frames are
// published on the event bus; handlers never run on the read loop's stack
// beyond the bus hand-off.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"papertraderv1/internal/events"
	"papertraderv1/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the client's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateExhausted    State = "exhausted"
)

// StateChange is published on events.TopicFeedState at every transition.
// Attempt is 0 on an explicit Connect; a connecting event after a lost
// session carries the reconnect attempt about to be made.
type StateChange struct {
	State   State `json:"state"`
	Attempt int   `json:"attempt"`
}

// Conn is the transport surface the client needs. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn to the feed endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func (w wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			log.Printf("[feed] dial failed, status: %s", resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

// Config holds feed client parameters.
type Config struct {
	URL                   string
	MaxReconnectAttempts  int
	BaseReconnectInterval time.Duration // delay = base × attempt
	KeepaliveInterval     time.Duration
	DialTimeout           time.Duration
}

// DefaultConfig returns the standard feed parameters for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:                   url,
		MaxReconnectAttempts:  5,
		BaseReconnectInterval: 3 * time.Second,
		KeepaliveInterval:     10 * time.Second,
		DialTimeout:           10 * time.Second,
	}
}

// Client owns the push-feed connection. All methods are safe for concurrent
// use; the subscription set survives reconnects and is cleared only by
// Disconnect.
type Client struct {
	cfg Config
	bus *events.Bus

	// Dialer may be replaced before the first Connect.
	Dialer Dialer

	mu      sync.Mutex
	state   State
	conn    Conn
	subs    map[string]struct{}
	attempt int
	gen     uint64        // bumped on every teardown; stale loops bail out
	done    chan struct{} // per-session, stops the keepalive loop

	ticket string
	sleep  func(time.Duration)
}

// NewClient creates a disconnected feed client publishing on bus.
func NewClient(cfg Config, bus *events.Bus) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.BaseReconnectInterval <= 0 {
		cfg.BaseReconnectInterval = 3 * time.Second
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		bus:    bus,
		Dialer: wsDialer{websocket.DefaultDialer},
		state:  StateDisconnected,
		subs:   make(map[string]struct{}),
		ticket: uuid.NewString(),
		sleep:  time.Sleep,
	}
}

// Connect starts the connection attempt loop. A no-op while connecting or
// connected. The loop runs in the background: bounded attempts with delay
// base × attempt between them, then the exhausted state until the next
// explicit Connect.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.connectLoop(gen)
}

func (c *Client) connectLoop(gen uint64) {
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		if c.gen != gen || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.attempt = attempt
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
		conn, err := c.Dialer.Dial(ctx, c.cfg.URL)
		cancel()
		if err == nil {
			c.startSession(gen, conn)
			return
		}

		log.Printf("[feed] connect attempt %d/%d failed: %v", attempt, c.cfg.MaxReconnectAttempts, err)
		if attempt >= c.cfg.MaxReconnectAttempts {
			c.mu.Lock()
			if c.gen == gen {
				c.setStateLocked(StateExhausted)
			}
			c.mu.Unlock()
			return
		}
		c.sleep(c.cfg.BaseReconnectInterval * time.Duration(attempt))
	}
}

func (c *Client) startSession(gen uint64, conn Conn) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.gen++
	gen = c.gen
	c.conn = conn
	c.attempt = 0
	c.done = make(chan struct{})
	done := c.done
	c.setStateLocked(StateConnected)

	// Resubscribe transparently after reconnect.
	if err := c.sendSubscriptionsLocked(); err != nil {
		log.Printf("[feed] resubscribe failed: %v", err)
	}
	c.mu.Unlock()

	go c.readLoop(gen, conn)
	go c.keepaliveLoop(gen, conn, done)
}

// Subscribe adds codes to the subscription set. When connected, the entire
// current set is re-sent as one frame (the transport replaces, it does not
// merge); otherwise the set is buffered and a connection attempt starts.
func (c *Client) Subscribe(codes ...string) error {
	c.mu.Lock()
	for _, code := range codes {
		c.subs[code] = struct{}{}
	}
	if c.state == StateConnected {
		err := c.sendSubscriptionsLocked()
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.Connect()
	return nil
}

// Unsubscribe removes codes from the subscription set and, when connected,
// re-sends the remaining whole set.
func (c *Client) Unsubscribe(codes ...string) error {
	c.mu.Lock()
	for _, code := range codes {
		delete(c.subs, code)
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	err := c.sendSubscriptionsLocked()
	c.mu.Unlock()
	return err
}

// Disconnect tears the connection down: stops keepalive, closes the
// transport, clears the subscription set, and resets attempt counters.
// Idempotent; this is the only operation that clears subscriptions.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.subs = make(map[string]struct{})
	c.attempt = 0
	c.setStateLocked(StateDisconnected)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns the current subscription set, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedSubsLocked()
}

func (c *Client) sortedSubsLocked() []string {
	codes := make([]string, 0, len(c.subs))
	for code := range c.subs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// sendSubscriptionsLocked writes the whole-set-replace subscribe frame:
// a ticket element followed by one filter per stream type. Callers hold
// the mutex with an open connection.
func (c *Client) sendSubscriptionsLocked() error {
	if c.conn == nil {
		return nil
	}
	codes := c.sortedSubsLocked()
	frame := []interface{}{
		map[string]string{"ticket": c.ticket},
		map[string]interface{}{"type": "ticker", "codes": codes, "isOnlyRealtime": true},
		map[string]interface{}{"type": "orderbook", "codes": codes, "isOnlyRealtime": true},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) handleReadError(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		// Deliberate teardown already ran.
		c.mu.Unlock()
		return
	}
	c.gen++
	newGen := c.gen
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	// The connecting event must announce this as a reconnect, not a fresh
	// Connect, so it carries the attempt number the loop is about to make.
	c.attempt = 1
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	log.Printf("[feed] connection lost: %v, reconnecting", err)
	c.connectLoop(newGen)
}

func (c *Client) keepaliveLoop(gen uint64, conn Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.gen != gen
			var err error
			if !stale {
				err = conn.WriteMessage(websocket.PingMessage, []byte("PING"))
			}
			c.mu.Unlock()
			if stale {
				return
			}
			if err != nil {
				// The read loop sees the broken transport and reconnects.
				log.Printf("[feed] keepalive write failed: %v", err)
				return
			}
		}
	}
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	log.Printf("[feed] state=%s", s)
	if c.bus != nil {
		c.bus.Publish(events.TopicFeedState, StateChange{State: s, Attempt: c.attempt})
	}
}

// ─── Inbound frame dispatch ───

type wireTicker struct {
	Type              string  `json:"type"`
	Code              string  `json:"code"`
	TradePrice        float64 `json:"trade_price"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	PrevClosingPrice  float64 `json:"prev_closing_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	Timestamp         int64   `json:"timestamp"` // epoch millis
}

type wireOrderBook struct {
	Type         string                `json:"type"`
	Code         string                `json:"code"`
	TotalAskSize float64               `json:"total_ask_size"`
	TotalBidSize float64               `json:"total_bid_size"`
	Units        []model.OrderBookUnit `json:"orderbook_units"`
	Timestamp    int64                 `json:"timestamp"`
}

// dispatch routes one inbound frame by its type discriminator. Keepalive
// acks and unknown types are swallowed.
func (c *Client) dispatch(data []byte) {
	var probe struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return
	}
	if probe.Status != "" && probe.Type == "" {
		return // keepalive ack
	}

	switch probe.Type {
	case "ticker":
		var w wireTicker
		if err := json.Unmarshal(data, &w); err != nil {
			log.Printf("[feed] bad ticker frame: %v", err)
			return
		}
		tk := model.Ticker{
			Code:             w.Code,
			TradePrice:       w.TradePrice,
			OpenPrice:        w.OpeningPrice,
			HighPrice:        w.HighPrice,
			LowPrice:         w.LowPrice,
			PrevClosingPrice: w.PrevClosingPrice,
			SignedChangeRate: w.SignedChangeRate,
			AccTradeVolume:   w.AccTradeVolume24h,
			TS:               millisToTime(w.Timestamp),
		}
		if c.bus != nil {
			c.bus.Publish(events.TopicTicker, tk)
		}
	case "orderbook":
		var w wireOrderBook
		if err := json.Unmarshal(data, &w); err != nil {
			log.Printf("[feed] bad orderbook frame: %v", err)
			return
		}
		ob := model.OrderBook{
			Code:         w.Code,
			TotalAskSize: w.TotalAskSize,
			TotalBidSize: w.TotalBidSize,
			Units:        w.Units,
			TS:           millisToTime(w.Timestamp),
		}
		if c.bus != nil {
			c.bus.Publish(events.TopicOrderBook, ob)
		}
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
