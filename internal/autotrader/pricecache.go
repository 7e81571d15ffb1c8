package autotrader

import (
	"context"
	"sync"
)

// PriceSource supplies the current-price map for a set of instruments.
// Both the REST snapshot client and the feed-backed PriceCache satisfy it.
type PriceSource interface {
	PriceMap(ctx context.Context, codes []string) (map[string]float64, error)
}

// PriceCache holds the latest trade price per instrument, fed from the push
// feed's ticker stream. Instruments never seen are absent from PriceMap.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]float64)}
}

// SetPrice records the latest trade price for code.
func (c *PriceCache) SetPrice(code string, price float64) {
	c.mu.Lock()
	c.prices[code] = price
	c.mu.Unlock()
}

// PriceMap returns the cached price for each requested code that has one.
func (c *PriceCache) PriceMap(_ context.Context, codes []string) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(codes))
	for _, code := range codes {
		if p, ok := c.prices[code]; ok {
			out[code] = p
		}
	}
	return out, nil
}
