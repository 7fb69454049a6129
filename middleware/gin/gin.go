// Package gin provides Gin middleware that verifies Mercury webhook signatures
package gin

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// Context keys set by Middleware.
const (
	VerificationKey = "mercury.verification"
	BodyKey         = "mercury.body"
)

// SecretExtractor returns the webhook secret for a request.
// Returning mercury.ErrSubscriptionNotFound answers 404.
type SecretExtractor func(c *gongin.Context) (mercury.Secret, error)

// Config holds middleware configuration
type Config struct {
	// Secret is used when GetSecret is nil. An empty secret skips verification.
	Secret mercury.Secret

	// GetSecret resolves the secret per request (optional)
	GetSecret SecretExtractor

	// MaxBodyBytes limits the body size (default: 256 KiB)
	MaxBodyBytes int64

	Logger  mercury.Logger
	Metrics mercury.Metrics

	// OnRejected is called when the signature check fails
	// If nil, aborts with 401 JSON
	OnRejected func(c *gongin.Context, v mercury.Verification)

	// OnError is called when the body cannot be read or the secret cannot be resolved
	// If nil, aborts with 400/404/413/500 JSON
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that rejects requests whose
// Mercury-Signature does not match the body
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 256 << 10
	}
	logger := mercury.LoggerOrNoop(cfg.Logger)
	metrics := mercury.MetricsOrNoop(cfg.Metrics)

	fail := func(c *gongin.Context, err error) {
		if cfg.OnError != nil {
			cfg.OnError(c, err)
			c.Abort()
			return
		}
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			abort(c, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, mercury.ErrSubscriptionNotFound):
			abort(c, http.StatusNotFound, "subscription not found")
		default:
			abort(c, http.StatusInternalServerError, "internal error")
		}
	}

	return func(c *gongin.Context) {
		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes))
			if err != nil {
				fail(c, err)
				return
			}
		}

		secret := cfg.Secret
		if cfg.GetSecret != nil {
			var err error
			if secret, err = cfg.GetSecret(c); err != nil {
				fail(c, err)
				return
			}
		}

		v := mercury.Verify(c.Request.Header, body, secret)
		metrics.RecordVerification(v.Status.String())
		if !v.OK() {
			logger.Warn("webhook signature rejected",
				mercury.Field{Key: "reason", Value: v.Reason},
				mercury.Field{Key: "path", Value: c.Request.URL.Path},
			)
			if cfg.OnRejected != nil {
				cfg.OnRejected(c, v)
				c.Abort()
			} else {
				abort(c, http.StatusUnauthorized, "unauthorized: "+v.Reason)
			}
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(VerificationKey, v)
		c.Set(BodyKey, body)
		c.Next()
	}
}

// GetVerification returns the result stored by Middleware.
func GetVerification(c *gongin.Context) (mercury.Verification, bool) {
	raw, ok := c.Get(VerificationKey)
	if !ok {
		return mercury.Verification{}, false
	}
	v, ok := raw.(mercury.Verification)
	return v, ok
}

// SecretFromParam resolves secrets by a route parameter.
func SecretFromParam(param string, secrets map[string]mercury.Secret) SecretExtractor {
	return func(c *gongin.Context) (mercury.Secret, error) {
		s, ok := secrets[c.Param(param)]
		if !ok {
			return "", mercury.ErrSubscriptionNotFound
		}
		return s, nil
	}
}

func abort(c *gongin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gongin.H{"status": "error", "message": msg})
}
