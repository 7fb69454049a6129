package banking

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

var (
	// ErrMissingToken is returned when no access token is configured
	ErrMissingToken = errors.New("Mercury API access token is required")

	// ErrUnauthorized matches 401 answers
	ErrUnauthorized = errors.New("invalid or expired Mercury API access token")

	// ErrNotFound matches 404 answers
	ErrNotFound = errors.New("resource not found")
)

// APIError is a non-2xx answer from the Mercury API. It matches
// mercury.ErrUpstream, plus ErrUnauthorized or ErrNotFound by status.
type APIError struct {
	StatusCode int
	Message    string
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercury API error: status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match the sentinel for the response status.
func (e *APIError) Is(target error) bool {
	switch target {
	case mercury.ErrUpstream:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
