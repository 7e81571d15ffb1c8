// Package events provides the in-process pub/sub bus connecting the feed
// client, signal generator, ledger, and auto-trader to their listeners.
// Any number of subscribers may listen on a topic; slow subscribers drop
// messages rather than stall the publisher.
package events

import (
	"log"
	"sync"
)

// Topics published on the bus.
const (
	TopicTicker    = "ticker"
	TopicOrderBook = "orderbook"
	TopicFeedState = "feed_state"
	TopicSignals   = "signals"
	TopicFills     = "fills"
	TopicAutoTrade = "auto_trade"
)

// Event is one published message.
type Event struct {
	Topic   string
	Payload interface{}
}

// Subscription is one listener's feed of events. Receive on C; call Close
// (or Bus.Unsubscribe) when done.
type Subscription struct {
	C chan Event

	bus    *Bus
	topic  string
	closed bool
}

// Close detaches the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

// Bus fans published events out to topic subscribers. Publishing never
// blocks: a subscriber whose channel is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	dropped map[string]uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string]map[*Subscription]struct{}),
		dropped: make(map[string]uint64),
	}
}

// Subscribe registers a listener on topic with the given channel buffer.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		C:     make(chan Event, buffer),
		bus:   b,
		topic: topic,
	}

	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := b.subs[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.topic)
		}
	}
	close(sub.C)
}

// Publish delivers payload to every subscriber of topic. Subscribers with a
// full buffer are skipped and the drop is counted.
func (b *Bus) Publish(topic string, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	var droppedNow uint64
	for sub := range b.subs[topic] {
		select {
		case sub.C <- ev:
		default:
			droppedNow++
		}
	}
	b.mu.RUnlock()

	if droppedNow > 0 {
		b.mu.Lock()
		before := b.dropped[topic]
		b.dropped[topic] = before + droppedNow
		b.mu.Unlock()
		// Log on the first drop and every 1000th thereafter.
		if before/1000 != (before+droppedNow)/1000 || before == 0 {
			log.Printf("[events] topic %s dropped %d messages total", topic, before+droppedNow)
		}
	}
}

// Dropped returns how many events have been dropped on topic.
func (b *Bus) Dropped(topic string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[topic]
}

// SubscriberCount returns the number of active subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
