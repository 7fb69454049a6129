// Package redis provides a Redis implementation of the subscription.Store interface.
// Subscriptions are stored as JSON strings under a configurable key prefix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Storage implements subscription.Store using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "mercury:subscription:")
	KeyPrefix string

	// TTL is the TTL for subscription keys (0 = no expiration)
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "mercury:subscription:",
		TTL:       0, // Subscriptions live until deleted
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}

	return &Storage{
		client: client,
		config: config,
	}, nil
}

func (s *Storage) key(id string) string {
	return s.config.KeyPrefix + id
}

// Get implements subscription.Store
func (s *Storage) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, subscription.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var sub subscription.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return &sub, nil
}

// Put implements subscription.Store
func (s *Storage) Put(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sub.ID), data, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return nil
}

// Delete implements subscription.Store
func (s *Storage) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if n == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}
