package api

import (
	"time"

	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// CreateRequest is the body of a subscription create call
type CreateRequest struct {
	Endpoint    string   `json:"endpoint" validate:"omitempty,url"`
	Target      string   `json:"target" validate:"omitempty,max=255"`
	EventTypes  []string `json:"event_types" validate:"omitempty,dive,required"`
	FilterPaths []string `json:"filter_paths" validate:"omitempty,dive,required"`
}

// SubscriptionResponse describes a stored subscription. The secret is never returned.
type SubscriptionResponse struct {
	ID          string    `json:"id"`
	Endpoint    string    `json:"endpoint"`
	ExternalID  string    `json:"external_id"`
	Status      string    `json:"status"`
	Target      string    `json:"target,omitempty"`
	EventTypes  []string  `json:"event_types,omitempty"`
	FilterPaths []string  `json:"filter_paths,omitempty"`
	Environment string    `json:"environment,omitempty"`
	HasSecret   bool      `json:"has_secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newSubscriptionResponse(s *subscription.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:          s.ID,
		Endpoint:    s.Endpoint,
		ExternalID:  s.ExternalID,
		Status:      s.Status,
		Target:      s.Target,
		EventTypes:  s.EventTypes,
		FilterPaths: s.FilterPaths,
		Environment: s.Environment,
		HasSecret:   !s.Secret.IsZero(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
