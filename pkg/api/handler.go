package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gomercury/pkg/banking"
	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/subscription"
)

const maxRequestBytes = 64 << 10

var validate = validator.New()

// Handler provides HTTP endpoints for the subscription lifecycle
type Handler struct {
	config Config
	logger mercury.Logger
}

// Create registers a Mercury webhook and stores the new subscription
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	token := h.config.GetAccessToken(r)
	if token == "" {
		h.handleError(w, r, fmt.Errorf("access token not found"), http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}

	sub, err := h.config.Manager.Create(r.Context(), subscription.CreateRequest{
		AccessToken: token,
		Endpoint:    req.Endpoint,
		Target:      req.Target,
		EventTypes:  req.EventTypes,
		FilterPaths: req.FilterPaths,
	})
	if err != nil {
		h.handleError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, newSubscriptionResponse(sub))
}

// Get returns one subscription
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := h.config.GetSubscriptionID(r)
	if id == "" {
		h.handleError(w, r, fmt.Errorf("subscription id not found"), http.StatusBadRequest)
		return
	}

	sub, err := h.config.Manager.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

// Delete removes the Mercury webhook and the stored subscription
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	token := h.config.GetAccessToken(r)
	if token == "" {
		h.handleError(w, r, fmt.Errorf("access token not found"), http.StatusUnauthorized)
		return
	}
	id := h.config.GetSubscriptionID(r)
	if id == "" {
		h.handleError(w, r, fmt.Errorf("subscription id not found"), http.StatusBadRequest)
		return
	}

	if err := h.config.Manager.Delete(r.Context(), id, token); err != nil {
		h.handleError(w, r, err, statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh re-validates the token and re-activates the subscription
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.config.GetAccessToken(r)
	if token == "" {
		h.handleError(w, r, fmt.Errorf("access token not found"), http.StatusUnauthorized)
		return
	}
	id := h.config.GetSubscriptionID(r)
	if id == "" {
		h.handleError(w, r, fmt.Errorf("subscription id not found"), http.StatusBadRequest)
		return
	}

	sub, err := h.config.Manager.Refresh(r.Context(), id, token)
	if err != nil {
		h.handleError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, banking.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, mercury.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	message := err.Error()
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("subscription API request failed",
			mercury.Field{Key: "path", Value: r.URL.Path},
			mercury.Field{Key: "error", Value: err},
		)
		if statusCode == http.StatusInternalServerError {
			message = "internal error"
		}
	}

	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
