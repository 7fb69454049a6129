// Package subscriptiontest holds the behavior every subscription.Store must share.
package subscriptiontest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Sample returns a fully populated subscription with the given id.
func Sample(id string) *subscription.Subscription {
	now := time.Date(2025, 12, 19, 10, 30, 0, 0, time.UTC)
	return &subscription.Subscription{
		ID:          id,
		Endpoint:    "https://hooks.example.com/mercury/" + id,
		ExternalID:  "wh_" + id,
		Secret:      mercury.Secret("c2VjcmV0LWtleQ=="),
		Status:      subscription.StatusActive,
		Target:      "reconcile",
		EventTypes:  []string{"transaction.created", "transaction.updated"},
		FilterPaths: []string{"status", "amount"},
		Environment: "sandbox",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Run exercises store against the subscription.Store contract. Ids are
// prefixed so runs against shared backends do not collide.
func Run(t *testing.T, store subscription.Store) {
	t.Helper()
	ctx := context.Background()
	prefix := t.Name() + "-"

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing")
		if !errors.Is(err, subscription.ErrNotFound) {
			t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		want := Sample(prefix + "a")
		if err := store.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		assertEqual(t, want, got)
	})

	t.Run("put replaces", func(t *testing.T) {
		sub := Sample(prefix + "b")
		if err := store.Put(ctx, sub); err != nil {
			t.Fatalf("Put: %v", err)
		}
		updated := sub.Clone()
		updated.Status = subscription.StatusDisabled
		updated.UpdatedAt = sub.UpdatedAt.Add(time.Hour)
		if err := store.Put(ctx, updated); err != nil {
			t.Fatalf("Put(updated): %v", err)
		}
		got, err := store.Get(ctx, sub.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		assertEqual(t, updated, got)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		sub := Sample(prefix + "c")
		if err := store.Put(ctx, sub); err != nil {
			t.Fatalf("Put: %v", err)
		}
		sub.Target = "mutated"
		got, err := store.Get(ctx, sub.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Target != "reconcile" {
			t.Errorf("stored value changed through caller's pointer: %q", got.Target)
		}
	})

	t.Run("delete", func(t *testing.T) {
		sub := Sample(prefix + "d")
		if err := store.Put(ctx, sub); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.Delete(ctx, sub.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, sub.ID); !errors.Is(err, subscription.ErrNotFound) {
			t.Errorf("Get after Delete err = %v, want ErrNotFound", err)
		}
		if err := store.Delete(ctx, sub.ID); !errors.Is(err, subscription.ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("invalid subscription", func(t *testing.T) {
		if err := store.Put(ctx, nil); err == nil {
			t.Error("Put(nil) should fail")
		}
		if err := store.Put(ctx, &subscription.Subscription{}); err == nil {
			t.Error("Put without id should fail")
		}
	})
}

func assertEqual(t *testing.T, want, got *subscription.Subscription) {
	t.Helper()
	if got.ID != want.ID || got.Endpoint != want.Endpoint || got.ExternalID != want.ExternalID ||
		got.Secret != want.Secret || got.Status != want.Status || got.Target != want.Target ||
		got.Environment != want.Environment {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !equalStrings(got.EventTypes, want.EventTypes) || !equalStrings(got.FilterPaths, want.FilterPaths) {
		t.Errorf("lists differ: got %v/%v, want %v/%v", got.EventTypes, got.FilterPaths, want.EventTypes, want.FilterPaths)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("timestamps differ: got %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
