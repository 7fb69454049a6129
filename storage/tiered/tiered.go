// Package tiered provides a Hot/Cold tiered subscription store that pairs a
// fast cache (Hot) with durable persistent storage (Cold).
package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory)
	Hot subscription.Store

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold subscription.Store

	// HotErrorHandler is called when a best-effort Hot write fails.
	// Useful for monitoring cache drift.
	HotErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered subscription store.
// - Read-Through: Get (Hot → Cold → populate Hot)
// - Write-Through: Put and Delete (Cold → Hot)
type Storage struct {
	hot  subscription.Store
	cold subscription.Store
	conf Config
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	return &Storage{
		hot:  config.Hot,
		cold: config.Cold,
		conf: config,
	}, nil
}

// Get implements subscription.Store with read-through strategy.
func (s *Storage) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	// 1. Try Hot
	sub, err := s.hot.Get(ctx, id)
	if err == nil && sub != nil {
		return sub, nil
	}

	// 2. Try Cold (Source of Truth)
	sub, err = s.cold.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot (Read-Repair)
	s.hotFailed("fill", s.hot.Put(ctx, sub))

	return sub, nil
}

// Put implements subscription.Store with write-through strategy.
func (s *Storage) Put(ctx context.Context, sub *subscription.Subscription) error {
	// 1. Write Cold (Durability)
	if err := s.cold.Put(ctx, sub); err != nil {
		return err
	}
	// 2. Write Hot (Availability)
	s.hotFailed("put", s.hot.Put(ctx, sub))
	return nil
}

// Delete implements subscription.Store. Hot is cleared even when Cold has
// no record so a stale cache entry cannot outlive its subscription.
func (s *Storage) Delete(ctx context.Context, id string) error {
	coldErr := s.cold.Delete(ctx, id)
	if coldErr != nil && !errors.Is(coldErr, subscription.ErrNotFound) {
		return coldErr
	}

	if err := s.hot.Delete(ctx, id); !errors.Is(err, subscription.ErrNotFound) {
		s.hotFailed("delete", err)
	}
	return coldErr
}

func (s *Storage) hotFailed(op string, err error) {
	if err != nil && s.conf.HotErrorHandler != nil {
		s.conf.HotErrorHandler(fmt.Errorf("tiered hot %s failed: %w", op, err))
	}
}
