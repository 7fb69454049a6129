// Package memory provides an in-memory implementation of subscription.Store.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Storage implements subscription.Store using an in-memory map
type Storage struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

// Get implements subscription.Store
func (s *Storage) Get(_ context.Context, id string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, subscription.ErrNotFound
	}

	// Return a copy to prevent external mutations
	return sub.Clone(), nil
}

// Put implements subscription.Store
func (s *Storage) Put(_ context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

// Delete implements subscription.Store
func (s *Storage) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[id]; !ok {
		return subscription.ErrNotFound
	}
	delete(s.subscriptions, id)
	return nil
}

// Len returns the number of stored subscriptions.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = make(map[string]*subscription.Subscription)
}
