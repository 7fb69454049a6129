// Package echo provides Echo middleware that verifies Mercury webhook signatures
package echo

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// Context keys set by Middleware.
const (
	VerificationKey = "mercury.verification"
	BodyKey         = "mercury.body"
)

// SecretExtractor returns the webhook secret for a request.
// Returning mercury.ErrSubscriptionNotFound answers 404.
type SecretExtractor func(c echo.Context) (mercury.Secret, error)

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
	// If nil, returns 401 JSON
	OnRejected func(c echo.Context, v mercury.Verification) error

	// OnError is called when the body cannot be read or the secret cannot be resolved
	// If nil, returns 404/413/500 JSON
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that rejects requests whose
// Mercury-Signature does not match the body
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 256 << 10
	}
	logger := mercury.LoggerOrNoop(cfg.Logger)
	metrics := mercury.MetricsOrNoop(cfg.Metrics)

	fail := func(c echo.Context, err error) error {
		if cfg.OnError != nil {
			return cfg.OnError(c, err)
		}
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return jsonError(c, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, mercury.ErrSubscriptionNotFound):
			return jsonError(c, http.StatusNotFound, "subscription not found")
		default:
			return jsonError(c, http.StatusInternalServerError, "internal error")
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			var body []byte
			if req.Body != nil {
				var err error
				body, err = io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, cfg.MaxBodyBytes))
				if err != nil {
					return fail(c, err)
				}
			}

			secret := cfg.Secret
			if cfg.GetSecret != nil {
				var err error
				if secret, err = cfg.GetSecret(c); err != nil {
					return fail(c, err)
				}
			}

			v := mercury.Verify(req.Header, body, secret)
			metrics.RecordVerification(v.Status.String())
			if !v.OK() {
				logger.Warn("webhook signature rejected",
					mercury.Field{Key: "reason", Value: v.Reason},
					mercury.Field{Key: "path", Value: req.URL.Path},
				)
				if cfg.OnRejected != nil {
					return cfg.OnRejected(c, v)
				}
				return jsonError(c, http.StatusUnauthorized, "unauthorized: "+v.Reason)
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(VerificationKey, v)
			c.Set(BodyKey, body)
			return next(c)
		}
	}
}

// GetVerification returns the result stored by Middleware.
func GetVerification(c echo.Context) (mercury.Verification, bool) {
	v, ok := c.Get(VerificationKey).(mercury.Verification)
	return v, ok
}

// SecretFromParam resolves secrets by a route parameter.
func SecretFromParam(param string, secrets map[string]mercury.Secret) SecretExtractor {
	return func(c echo.Context) (mercury.Secret, error) {
		s, ok := secrets[c.Param(param)]
		if !ok {
			return "", mercury.ErrSubscriptionNotFound
		}
		return s, nil
	}
}

func jsonError(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"status": "error", "message": msg})
}
