// Package firestore provides a Firestore implementation of the subscription.Store interface.
// Each subscription is one document, keyed by subscription id.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Storage implements subscription.Store using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection for subscriptions
	// Default: "mercury_subscriptions"
	Collection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.Collection == "" {
		config.Collection = "mercury_subscriptions"
	}

	return &Storage{
		client:     client,
		collection: config.Collection,
	}, nil
}

// Get implements subscription.Store
func (s *Storage) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if !snap.Exists() {
		return nil, subscription.ErrNotFound
	}

	data := snap.Data()
	return &subscription.Subscription{
		ID:          id,
		Endpoint:    getString(data, "endpoint"),
		ExternalID:  getString(data, "externalId"),
		Secret:      mercury.Secret(getString(data, "secret")),
		Status:      getString(data, "status"),
		Target:      getString(data, "target"),
		EventTypes:  getStrings(data, "eventTypes"),
		FilterPaths: getStrings(data, "filterPaths"),
		Environment: getString(data, "environment"),
		CreatedAt:   getTime(data, "createdAt"),
		UpdatedAt:   getTime(data, "updatedAt"),
	}, nil
}

// Put implements subscription.Store
func (s *Storage) Put(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}

	data := map[string]interface{}{
		"endpoint":    sub.Endpoint,
		"externalId":  sub.ExternalID,
		"secret":      string(sub.Secret),
		"status":      sub.Status,
		"target":      sub.Target,
		"eventTypes":  sub.EventTypes,
		"filterPaths": sub.FilterPaths,
		"environment": sub.Environment,
		"createdAt":   sub.CreatedAt,
		"updatedAt":   sub.UpdatedAt,
	}

	if _, err := s.client.Collection(s.collection).Doc(sub.ID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return nil
}

// Delete implements subscription.Store
func (s *Storage) Delete(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return subscription.ErrNotFound
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Close closes the Firestore client.
func (s *Storage) Close() error {
	return s.client.Close()
}

// Helper functions for type conversion

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getStrings(data map[string]interface{}, key string) []string {
	raw, ok := data[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v.UTC()
	}
	return time.Time{}
}
