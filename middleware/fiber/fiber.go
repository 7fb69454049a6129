// Package fiber provides Fiber middleware that verifies Mercury webhook signatures
package fiber

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// Locals keys set by Middleware.
const (
	VerificationKey = "mercury.verification"
)

// SecretExtractor returns the webhook secret for a request.
// Returning mercury.ErrSubscriptionNotFound answers 404.
type SecretExtractor func(c *fiber.Ctx) (mercury.Secret, error)

// Config holds middleware configuration. Body size is bounded by the
// app's fiber.Config.BodyLimit.
type Config struct {
	// Secret is used when GetSecret is nil. An empty secret skips verification.
	Secret mercury.Secret

	// GetSecret resolves the secret per request (optional)
	GetSecret SecretExtractor

	Logger  mercury.Logger
	Metrics mercury.Metrics

	// OnRejected is called when the signature check fails
	// If nil, returns 401 JSON
	OnRejected func(c *fiber.Ctx, v mercury.Verification) error

	// OnError is called when the secret cannot be resolved
	// If nil, returns 404/500 JSON
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that rejects requests whose
// Mercury-Signature does not match the body
func Middleware(cfg Config) fiber.Handler {
	logger := mercury.LoggerOrNoop(cfg.Logger)
	metrics := mercury.MetricsOrNoop(cfg.Metrics)

	return func(c *fiber.Ctx) error {
		secret := cfg.Secret
		if cfg.GetSecret != nil {
			var err error
			if secret, err = cfg.GetSecret(c); err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				if errors.Is(err, mercury.ErrSubscriptionNotFound) {
					return jsonError(c, fiber.StatusNotFound, "subscription not found")
				}
				return jsonError(c, fiber.StatusInternalServerError, "internal error")
			}
		}

		header := http.Header{}
		if sig := c.Get(mercury.SignatureHeaderName); sig != "" {
			header.Set(mercury.SignatureHeaderName, sig)
		}

		v := mercury.Verify(header, c.Body(), secret)
		metrics.RecordVerification(v.Status.String())
		if !v.OK() {
			logger.Warn("webhook signature rejected",
				mercury.Field{Key: "reason", Value: v.Reason},
				mercury.Field{Key: "path", Value: c.Path()},
			)
			if cfg.OnRejected != nil {
				return cfg.OnRejected(c, v)
			}
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized: "+v.Reason)
		}

		c.Locals(VerificationKey, v)
		return c.Next()
	}
}

// GetVerification returns the result stored by Middleware.
func GetVerification(c *fiber.Ctx) (mercury.Verification, bool) {
	v, ok := c.Locals(VerificationKey).(mercury.Verification)
	return v, ok
}

// SecretFromParam resolves secrets by a route parameter.
func SecretFromParam(param string, secrets map[string]mercury.Secret) SecretExtractor {
	return func(c *fiber.Ctx) (mercury.Secret, error) {
		s, ok := secrets[c.Params(param)]
		if !ok {
			return "", mercury.ErrSubscriptionNotFound
		}
		return s, nil
	}
}

func jsonError(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{"status": "error", "message": msg})
}
