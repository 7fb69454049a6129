// Package subscription manages Mercury webhook registrations: creating and
// deleting them through the banking API, persisting their signing secrets,
// and resolving inbound deliveries to their binding.
package subscription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// ErrNotFound is returned by stores when no subscription exists for an id.
var ErrNotFound = mercury.ErrSubscriptionNotFound

// Subscription statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Subscription is a persisted webhook registration.
type Subscription struct {
	ID          string         `json:"id"`
	Endpoint    string         `json:"endpoint"`
	ExternalID  string         `json:"external_id"`
	Secret      mercury.Secret `json:"secret"`
	Status      string         `json:"status"`
	Target      string         `json:"target"`
	EventTypes  []string       `json:"event_types,omitempty"`
	FilterPaths []string       `json:"filter_paths,omitempty"`
	Environment string         `json:"environment,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Binding returns the secret and target deliveries are checked and routed with.
func (s *Subscription) Binding() mercury.Binding {
	return mercury.Binding{Secret: s.Secret, Target: s.Target}
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.EventTypes = append([]string(nil), s.EventTypes...)
	c.FilterPaths = append([]string(nil), s.FilterPaths...)
	return &c
}

// Store persists subscriptions.
type Store interface {
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Subscription, error)

	// Put inserts or replaces the subscription with sub.ID.
	Put(ctx context.Context, sub *Subscription) error

	// Delete returns ErrNotFound when id is unknown.
	Delete(ctx context.Context, id string) error
}

// ParseFilterPaths splits a comma-separated list, dropping blanks.
func ParseFilterPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Instrument wraps store so every operation is reported to metrics.
func Instrument(store Store, metrics mercury.Metrics) Store {
	return &instrumentedStore{store: store, metrics: mercury.MetricsOrNoop(metrics)}
}

type instrumentedStore struct {
	store   Store
	metrics mercury.Metrics
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*Subscription, error) {
	start := time.Now()
	sub, err := s.store.Get(ctx, id)
	s.record("get", start, err)
	return sub, err
}

func (s *instrumentedStore) Put(ctx context.Context, sub *Subscription) error {
	start := time.Now()
	err := s.store.Put(ctx, sub)
	s.record("put", start, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.store.Delete(ctx, id)
	s.record("delete", start, err)
	return err
}

// record does not count ErrNotFound as a storage failure.
func (s *instrumentedStore) record(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.metrics.RecordStorageOperation(op, time.Since(start), err)
}
