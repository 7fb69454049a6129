// Package http provides net/http middleware that verifies Mercury webhook signatures
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

// DefaultMaxBodyBytes caps the body read for verification.
const DefaultMaxBodyBytes int64 = 256 << 10

// SecretExtractor returns the webhook secret for a request.
// Returning mercury.ErrSubscriptionNotFound answers 404.
type SecretExtractor func(r *http.Request) (mercury.Secret, error)

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
	// If nil, returns 401 with a JSON error body
	OnRejected func(w http.ResponseWriter, r *http.Request, v mercury.Verification)

	// OnError is called when the body cannot be read or the secret cannot be resolved
	// If nil, returns 400/404/413/500 with a JSON error body
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// VerificationKey is the context key for the verification result
	VerificationKey ContextKey = "mercury:verification"

	// BodyKey is the context key for the raw body bytes
	BodyKey ContextKey = "mercury:body"
)

// errBodyTooLarge is reported to OnError when the body exceeds MaxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

// Middleware creates an HTTP middleware that rejects requests whose
// Mercury-Signature does not match the body. The body is restored for the
// next handler.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := mercury.LoggerOrNoop(config.Logger)
	metrics := mercury.MetricsOrNoop(config.Metrics)

	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		if config.OnError != nil {
			config.OnError(w, r, err)
			return
		}
		switch {
		case errors.Is(err, errBodyTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, mercury.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, "subscription not found")
		case errors.Is(err, mercury.ErrPayload):
			writeError(w, http.StatusBadRequest, "invalid payload: "+mercury.ReasonOf(err))
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readBody(w, r, config.MaxBodyBytes)
			if err != nil {
				fail(w, r, err)
				return
			}

			secret := config.Secret
			if config.GetSecret != nil {
				if secret, err = config.GetSecret(r); err != nil {
					fail(w, r, err)
					return
				}
			}

			v := mercury.Verify(r.Header, body, secret)
			metrics.RecordVerification(v.Status.String())
			if !v.OK() {
				logger.Warn("webhook signature rejected",
					mercury.Field{Key: "reason", Value: v.Reason},
					mercury.Field{Key: "path", Value: r.URL.Path},
				)
				if config.OnRejected != nil {
					config.OnRejected(w, r, v)
				} else {
					writeError(w, http.StatusUnauthorized, "unauthorized: "+v.Reason)
				}
				return
			}

			// Restore body for next handler
			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), VerificationKey, v)
			ctx = context.WithValue(ctx, BodyKey, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandlerFunc creates an HTTP middleware (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

// VerificationFromContext returns the result stored by Middleware.
func VerificationFromContext(ctx context.Context) (mercury.Verification, bool) {
	v, ok := ctx.Value(VerificationKey).(mercury.Verification)
	return v, ok
}

// BodyFromContext returns the raw body bytes the signature was checked against.
func BodyFromContext(ctx context.Context) []byte {
	b, _ := ctx.Value(BodyKey).([]byte)
	return b
}

// SecretFromHeader returns a SecretExtractor backed by a lookup keyed on a
// header value, for deployments that route several integrations through one path.
func SecretFromHeader(headerName string, secrets map[string]mercury.Secret) SecretExtractor {
	return func(r *http.Request) (mercury.Secret, error) {
		s, ok := secrets[r.Header.Get(headerName)]
		if !ok {
			return "", mercury.ErrSubscriptionNotFound
		}
		return s, nil
	}
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, mercury.NewError(mercury.ErrPayload, "unreadable_body", err)
	}
	return body, nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": msg})
}
