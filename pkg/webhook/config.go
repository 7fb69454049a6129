package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

const (
	defaultMaxBodyBytes    = 256 * 1024
	defaultDispatchTimeout = 15 * time.Second
	defaultRateLimitWindow = time.Minute
	defaultBackendName     = "workflow"
)

// Mode selects how a dispatched transaction is acknowledged.
type Mode string

const (
	// ModeWorkflow runs Binding.Target and answers with its run id.
	ModeWorkflow Mode = "workflow"

	// ModeEvent emits a "transaction" event and answers {"status":"ok"}.
	// A target is optional in this mode.
	ModeEvent Mode = "event"
)

// Resolver yields the binding (secret and target) a request is checked and
// routed with. Returning an error wrapping mercury.ErrSubscriptionNotFound
// produces a 404.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (mercury.Binding, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, r *http.Request) (mercury.Binding, error)

// Resolve calls f(ctx, r).
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (mercury.Binding, error) {
	return f(ctx, r)
}

// StaticResolver always returns the same binding.
type StaticResolver mercury.Binding

// Resolve implements Resolver.
func (s StaticResolver) Resolve(context.Context, *http.Request) (mercury.Binding, error) {
	return mercury.Binding(s), nil
}

// Config configures a webhook Handler.
type Config struct {
	// Resolver supplies the secret and target per request. Required.
	Resolver Resolver

	// Invoker receives normalized transactions. Required.
	Invoker workflow.Invoker

	// Backend labels dispatch metrics and logs (e.g. "temporal", "kafka").
	Backend string

	// Mode defaults to ModeWorkflow.
	Mode Mode

	// Logger is optional; nil discards logs.
	Logger mercury.Logger

	// Metrics is optional; nil disables metrics.
	Metrics mercury.Metrics

	// MaxBodyBytes caps the request body. Defaults to 256 KiB.
	MaxBodyBytes int64

	// DispatchTimeout bounds a single Invoke call. Defaults to 15s.
	DispatchTimeout time.Duration

	// RateLimit is the number of requests allowed per client IP per
	// RateLimitWindow. Zero disables rate limiting.
	RateLimit       int
	RateLimitWindow time.Duration

	// TrustProxyHeaders takes the client IP from X-Forwarded-For. Enable
	// only behind a proxy that sets the header; otherwise clients choose
	// their own rate-limit bucket.
	TrustProxyHeaders bool

	// RedactErrors replaces dispatch error detail in 500 responses with a
	// generic message. The full error is still logged.
	RedactErrors bool
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Resolver == nil {
		return fmt.Errorf("%w: webhook resolver is required", mercury.ErrConfig)
	}
	if c.Invoker == nil {
		return fmt.Errorf("%w: workflow invoker is required", mercury.ErrConfig)
	}
	switch c.Mode {
	case "":
		c.Mode = ModeWorkflow
	case ModeWorkflow, ModeEvent:
	default:
		return fmt.Errorf("%w: unknown webhook mode %q", mercury.ErrConfig, c.Mode)
	}
	if c.Backend == "" {
		c.Backend = defaultBackendName
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaultDispatchTimeout
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", mercury.ErrConfig)
	}
	if c.RateLimit > 0 && c.RateLimitWindow <= 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
	return nil
}
