package redis

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrBreakerOpen is returned for writes while the breaker is tripped.
var ErrBreakerOpen = errors.New("redis: circuit breaker open")

// breaker is a minimal circuit breaker for write paths. After maxFailures
// consecutive failures it rejects calls for resetAfter, then lets one probe
// through: success closes it, failure re-trips it.
type breaker struct {
	mu          sync.Mutex
	maxFailures int
	resetAfter  time.Duration
	onTrip      func()

	failures    int
	tripped     bool
	lastFailure time.Time
}

func newBreaker(maxFailures int, resetAfter time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, resetAfter: resetAfter}
}

func (b *breaker) do(fn func() error) error {
	b.mu.Lock()
	if b.tripped && time.Since(b.lastFailure) < b.resetAfter {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if !b.tripped && b.failures >= b.maxFailures {
			b.tripped = true
			log.Printf("[redis] circuit breaker tripped after %d failures", b.failures)
			if b.onTrip != nil {
				b.onTrip()
			}
		}
		return err
	}

	if b.tripped {
		log.Printf("[redis] circuit breaker closed after successful probe")
	}
	b.tripped = false
	b.failures = 0
	return nil
}
