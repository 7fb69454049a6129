package api

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
)

// Config holds configuration for the subscription API handler
type Config struct {
	// Manager drives the subscription lifecycle (required)
	Manager *subscription.Manager

	// GetAccessToken extracts the Mercury access token from the request
	// If nil, uses the bearer token of the Authorization header
	GetAccessToken func(*http.Request) string

	// GetSubscriptionID extracts the subscription id from the request
	// If nil, uses the last path segment (or the one before "/refresh")
	GetSubscriptionID func(*http.Request) string

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	Logger mercury.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	return nil
}

// NewHandler creates a new subscription API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.GetAccessToken == nil {
		config.GetAccessToken = FromBearer()
	}
	if config.GetSubscriptionID == nil {
		config.GetSubscriptionID = idFromPath
	}
	return &Handler{
		config: config,
		logger: mercury.LoggerOrNoop(config.Logger),
	}, nil
}

// Helper functions for common token extraction patterns

// FromHeader returns a GetAccessToken function that reads a header verbatim
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromBearer returns a GetAccessToken function that reads "Authorization: Bearer <token>"
func FromBearer() func(*http.Request) string {
	return func(r *http.Request) string {
		auth := r.Header.Get("Authorization")
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
}

func idFromPath(r *http.Request) string {
	p := strings.TrimSuffix(strings.TrimRight(r.URL.Path, "/"), "/refresh")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
