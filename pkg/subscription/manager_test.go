package subscription_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gomercury/pkg/banking"
	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
	"github.com/mihaimyh/gomercury/storage/memory"
)

const goodToken = "secret-token:mercury_production_abc"

// fakeMercury records webhook calls and answers like the Mercury API.
type fakeMercury struct {
	mu         sync.Mutex
	created    []banking.CreateWebhookRequest
	deleted    []string
	deleteCode int
}

func (f *fakeMercury) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accounts":[]}`))
	})
	mux.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		var req banking.CreateWebhookRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.created = append(f.created, req)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(banking.Webhook{ID: "wh_123", URL: req.URL, Secret: "c2VjcmV0LWtleQ=="})
	})
	mux.HandleFunc("/webhooks/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/webhooks/"))
		code := f.deleteCode
		f.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func setup(t *testing.T, store subscription.Store) (*subscription.Manager, *fakeMercury) {
	t.Helper()
	fake := &fakeMercury{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	manager, err := subscription.NewManager(subscription.Config{
		Store: store,
		NewClient: func(token string) (*banking.Client, error) {
			return banking.NewClient(banking.Config{AccessToken: token, BaseURL: server.URL})
		},
		Environment:   banking.EnvironmentSandbox,
		EndpointBase:  "https://hooks.example.com/mercury/",
		DefaultTarget: "fallback",
		Now:           func() time.Time { return time.Date(2025, 12, 19, 10, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return manager, fake
}

// brokenStore fails writes.
type brokenStore struct {
	subscription.Store
}

func (brokenStore) Put(context.Context, *subscription.Subscription) error {
	return errors.New("write failed")
}

func TestNewManager_Validation(t *testing.T) {
	_, err := subscription.NewManager(subscription.Config{})
	assert.ErrorIs(t, err, mercury.ErrConfig)

	_, err = subscription.NewManager(subscription.Config{Store: memory.New()})
	assert.ErrorIs(t, err, mercury.ErrConfig)
}

func TestManager_Create(t *testing.T) {
	store := memory.New()
	manager, fake := setup(t, store)
	ctx := context.Background()

	sub, err := manager.Create(ctx, subscription.CreateRequest{
		AccessToken: goodToken,
		Target:      "reconcile",
		EventTypes:  []string{"transaction.created"},
		FilterPaths: []string{"status"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "https://hooks.example.com/mercury/"+sub.ID, sub.Endpoint)
	assert.Equal(t, "wh_123", sub.ExternalID)
	assert.Equal(t, mercury.Secret("c2VjcmV0LWtleQ=="), sub.Secret)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, "sandbox", sub.Environment)

	require.Len(t, fake.created, 1)
	assert.Equal(t, sub.Endpoint, fake.created[0].URL)
	assert.Equal(t, []string{"transaction.created"}, fake.created[0].EventTypes)

	stored, err := store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Secret, stored.Secret)
}

func TestManager_Create_ExplicitEndpoint(t *testing.T) {
	manager, _ := setup(t, memory.New())

	sub, err := manager.Create(context.Background(), subscription.CreateRequest{
		AccessToken: goodToken,
		Endpoint:    " https://other.example.com/hook ",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/hook", sub.Endpoint)
}

func TestManager_Create_InvalidToken(t *testing.T) {
	store := memory.New()
	manager, fake := setup(t, store)

	_, err := manager.Create(context.Background(), subscription.CreateRequest{AccessToken: "wrong"})
	assert.ErrorIs(t, err, banking.ErrUnauthorized)
	assert.Empty(t, fake.created)
	assert.Equal(t, 0, store.Len())
}

func TestManager_Create_RollsBackOnStoreFailure(t *testing.T) {
	manager, fake := setup(t, brokenStore{Store: memory.New()})

	_, err := manager.Create(context.Background(), subscription.CreateRequest{AccessToken: goodToken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store subscription")
	assert.Equal(t, []string{"wh_123"}, fake.deleted)
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes remote and local", func(t *testing.T) {
		store := memory.New()
		manager, fake := setup(t, store)
		sub, err := manager.Create(ctx, subscription.CreateRequest{AccessToken: goodToken})
		require.NoError(t, err)

		require.NoError(t, manager.Delete(ctx, sub.ID, goodToken))
		assert.Equal(t, []string{"wh_123"}, fake.deleted)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("remote already gone", func(t *testing.T) {
		store := memory.New()
		manager, fake := setup(t, store)
		sub, err := manager.Create(ctx, subscription.CreateRequest{AccessToken: goodToken})
		require.NoError(t, err)
		fake.deleteCode = http.StatusNotFound

		require.NoError(t, manager.Delete(ctx, sub.ID, goodToken))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("remote failure keeps local", func(t *testing.T) {
		store := memory.New()
		manager, fake := setup(t, store)
		sub, err := manager.Create(ctx, subscription.CreateRequest{AccessToken: goodToken})
		require.NoError(t, err)
		fake.deleteCode = http.StatusInternalServerError

		err = manager.Delete(ctx, sub.ID, goodToken)
		assert.ErrorIs(t, err, mercury.ErrUpstream)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("unknown subscription", func(t *testing.T) {
		manager, _ := setup(t, memory.New())
		assert.ErrorIs(t, manager.Delete(ctx, "missing", goodToken), subscription.ErrNotFound)
	})
}

func TestManager_Refresh(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	manager, _ := setup(t, store)

	sub, err := manager.Create(ctx, subscription.CreateRequest{AccessToken: goodToken})
	require.NoError(t, err)
	sub.Status = subscription.StatusDisabled
	require.NoError(t, store.Put(ctx, sub))

	_, err = manager.Refresh(ctx, sub.ID, "wrong")
	assert.ErrorIs(t, err, banking.ErrUnauthorized)

	refreshed, err := manager.Refresh(ctx, sub.ID, goodToken)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, refreshed.Status)

	got, err := manager.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
}

func TestManager_Resolve(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	manager, _ := setup(t, store)

	withTarget := &subscription.Subscription{ID: "s1", Secret: "a2V5", Status: subscription.StatusActive, Target: "reconcile"}
	noTarget := &subscription.Subscription{ID: "s2", Secret: "a2V5", Status: subscription.StatusActive}
	disabled := &subscription.Subscription{ID: "s3", Status: subscription.StatusDisabled}
	for _, s := range []*subscription.Subscription{withTarget, noTarget, disabled} {
		require.NoError(t, store.Put(ctx, s))
	}

	tests := []struct {
		name       string
		path       string
		wantTarget string
		wantErr    error
	}{
		{name: "own target", path: "/endpoints/mercury/s1", wantTarget: "reconcile"},
		{name: "trailing slash", path: "/endpoints/mercury/s1/", wantTarget: "reconcile"},
		{name: "default target", path: "/endpoints/mercury/s2", wantTarget: "fallback"},
		{name: "disabled", path: "/endpoints/mercury/s3", wantErr: subscription.ErrNotFound},
		{name: "unknown", path: "/endpoints/mercury/nope", wantErr: subscription.ErrNotFound},
		{name: "root", path: "/", wantErr: subscription.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.path, nil)
			b, err := manager.Resolve(ctx, r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, b.Target)
			assert.Equal(t, mercury.Secret("a2V5"), b.Secret)
		})
	}
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	metrics := &countingMetrics{}
	store := subscription.Instrument(memory.New(), metrics)

	require.NoError(t, store.Put(ctx, &subscription.Subscription{ID: "a"}))
	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "a"))

	assert.Equal(t, []string{"put", "get", "delete"}, metrics.ops)
	assert.Equal(t, 0, metrics.errors)
}

type countingMetrics struct {
	mercury.NoopMetrics
	ops    []string
	errors int
}

func (m *countingMetrics) RecordStorageOperation(op string, _ time.Duration, err error) {
	m.ops = append(m.ops, op)
	if err != nil {
		m.errors++
	}
}

func TestParseFilterPaths(t *testing.T) {
	assert.Equal(t, []string{"status", "amount"}, subscription.ParseFilterPaths(" status, ,amount,"))
	assert.Nil(t, subscription.ParseFilterPaths(""))
}
