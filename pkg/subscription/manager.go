package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gomercury/pkg/banking"
	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// ClientFactory builds a banking client for one access token.
type ClientFactory func(accessToken string) (*banking.Client, error)

// Config configures a Manager.
type Config struct {
	// Store persists subscriptions. Required.
	Store Store

	// NewClient builds banking clients. Required.
	NewClient ClientFactory

	// Environment is recorded on new subscriptions.
	Environment banking.Environment

	// EndpointBase, when set, lets Create derive the delivery URL as
	// EndpointBase + "/" + subscription id.
	EndpointBase string

	// SubscriptionID extracts the subscription id from an inbound delivery.
	// Defaults to the last path segment.
	SubscriptionID func(r *http.Request) string

	// DefaultTarget is used when a subscription has no target of its own.
	DefaultTarget string

	Logger mercury.Logger
	Now    func() time.Time
}

// CreateRequest describes a new subscription.
type CreateRequest struct {
	AccessToken string
	// Endpoint is the URL Mercury will POST deliveries to. Optional when
	// the manager has an EndpointBase.
	Endpoint    string
	Target      string
	EventTypes  []string
	FilterPaths []string
}

// Manager drives the subscription lifecycle.
type Manager struct {
	config Config
	logger mercury.Logger
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: subscription store is required", mercury.ErrConfig)
	}
	if cfg.NewClient == nil {
		return nil, fmt.Errorf("%w: banking client factory is required", mercury.ErrConfig)
	}
	if cfg.SubscriptionID == nil {
		cfg.SubscriptionID = lastPathSegment
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.EndpointBase = strings.TrimRight(cfg.EndpointBase, "/")
	return &Manager{config: cfg, logger: mercury.LoggerOrNoop(cfg.Logger)}, nil
}

// ValidateCredentials checks an access token against the accounts endpoint.
func (m *Manager) ValidateCredentials(ctx context.Context, accessToken string) error {
	client, err := m.config.NewClient(accessToken)
	if err != nil {
		return err
	}
	return client.ValidateCredentials(ctx)
}

// Create validates the token, registers a webhook with Mercury and stores
// the returned secret. If the store write fails the remote webhook is removed.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Subscription, error) {
	client, err := m.config.NewClient(req.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := client.ValidateCredentials(ctx); err != nil {
		return nil, fmt.Errorf("validate credentials: %w", err)
	}

	id := uuid.NewString()
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		if m.config.EndpointBase == "" {
			return nil, errors.New("subscription endpoint is required")
		}
		endpoint = m.config.EndpointBase + "/" + id
	}

	wh, err := client.CreateWebhook(ctx, banking.CreateWebhookRequest{
		URL:         endpoint,
		EventTypes:  req.EventTypes,
		FilterPaths: req.FilterPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("create Mercury webhook: %w", err)
	}

	now := m.config.Now().UTC()
	sub := &Subscription{
		ID:          id,
		Endpoint:    endpoint,
		ExternalID:  wh.ID,
		Secret:      mercury.Secret(wh.Secret),
		Status:      wh.Status,
		Target:      req.Target,
		EventTypes:  req.EventTypes,
		FilterPaths: req.FilterPaths,
		Environment: string(m.config.Environment),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.config.Store.Put(ctx, sub); err != nil {
		if delErr := client.DeleteWebhook(ctx, wh.ID); delErr != nil && !errors.Is(delErr, banking.ErrNotFound) {
			m.logger.Error("failed to roll back Mercury webhook",
				mercury.Field{Key: "external_id", Value: wh.ID},
				mercury.Field{Key: "error", Value: delErr},
			)
		}
		return nil, fmt.Errorf("store subscription: %w", err)
	}

	m.logger.Info("subscription created",
		mercury.Field{Key: "subscription_id", Value: sub.ID},
		mercury.Field{Key: "external_id", Value: sub.ExternalID},
	)
	return sub, nil
}

// Delete removes the Mercury webhook and the stored subscription. A webhook
// Mercury no longer knows about counts as already deleted.
func (m *Manager) Delete(ctx context.Context, id, accessToken string) error {
	sub, err := m.config.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.ExternalID == "" {
		return errors.New("subscription has no Mercury webhook id")
	}

	client, err := m.config.NewClient(accessToken)
	if err != nil {
		return err
	}
	if err := client.DeleteWebhook(ctx, sub.ExternalID); err != nil {
		if !errors.Is(err, banking.ErrNotFound) {
			return fmt.Errorf("delete Mercury webhook: %w", err)
		}
		m.logger.Info("Mercury webhook already deleted", mercury.Field{Key: "external_id", Value: sub.ExternalID})
	}

	if err := m.config.Store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	m.logger.Info("subscription deleted", mercury.Field{Key: "subscription_id", Value: id})
	return nil
}

// Refresh re-validates the token and marks the subscription active.
func (m *Manager) Refresh(ctx context.Context, id, accessToken string) (*Subscription, error) {
	sub, err := m.config.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateCredentials(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("validate credentials: %w", err)
	}
	sub.Status = StatusActive
	sub.UpdatedAt = m.config.Now().UTC()
	if err := m.config.Store.Put(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns a stored subscription.
func (m *Manager) Get(ctx context.Context, id string) (*Subscription, error) {
	return m.config.Store.Get(ctx, id)
}

// Resolve maps an inbound delivery to its subscription's binding. Disabled
// subscriptions resolve as not found.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (mercury.Binding, error) {
	id := m.config.SubscriptionID(r)
	if id == "" {
		return mercury.Binding{}, ErrNotFound
	}
	sub, err := m.config.Store.Get(ctx, id)
	if err != nil {
		return mercury.Binding{}, err
	}
	if sub.Status == StatusDisabled {
		return mercury.Binding{}, ErrNotFound
	}
	b := sub.Binding()
	if b.Target == "" {
		b.Target = m.config.DefaultTarget
	}
	return b, nil
}

func lastPathSegment(r *http.Request) string {
	p := strings.TrimRight(r.URL.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
