// Package redis provides the Redis-backed implementation of store.Store.
// All aggregate writes run through a circuit breaker so a flapping Redis
// does not stall the trading path; tripped writes fail fast and the caller's
// in-memory state remains authoritative until the next successful save.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"papertraderv1/internal/store"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis store.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string // namespace for all keys, e.g. "paper:"
}

// Store persists ledger aggregates in Redis as plain string keys.
type Store struct {
	client  *goredis.Client
	prefix  string
	breaker *breaker
}

// New creates a Redis Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{
		client:  client,
		prefix:  cfg.KeyPrefix,
		breaker: newBreaker(5, 10*time.Second),
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// OnBreakerTrip registers fn to run each time the write breaker trips.
// Call before the store sees traffic; not synchronized afterwards.
func (s *Store) OnBreakerTrip(fn func()) { s.breaker.onTrip = fn }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == goredis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.breaker.do(func() error {
		if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.breaker.do(func() error {
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
