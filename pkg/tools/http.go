package tools

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

const maxToolRequestBytes = 64 * 1024

// InvokeRequest is the body of a tool call.
type InvokeRequest struct {
	Credentials Credentials            `json:"credentials"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// InvokeResponse is the body of a successful tool call.
type InvokeResponse struct {
	Tool     string    `json:"tool"`
	Messages []Message `json:"messages"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handler serves POST calls to a single tool.
func Handler(t Tool, logger mercury.Logger) http.Handler {
	logger = mercury.LoggerOrNoop(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "method not allowed"})
			return
		}

		var req InvokeRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxToolRequestBytes))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
			return
		}

		msgs, err := t.Invoke(r.Context(), req.Credentials, req.Parameters)
		if err != nil {
			logger.Error("tool invocation failed",
				mercury.Field{Key: "tool", Value: t.Name()},
				mercury.Field{Key: "error", Value: err},
			)
			code := http.StatusInternalServerError
			if errors.Is(err, mercury.ErrUpstream) {
				code = http.StatusBadGateway
			}
			writeJSON(w, code, errorResponse{Status: "error", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, InvokeResponse{Tool: t.Name(), Messages: msgs})
	})
}

// ValidateHandler serves POST credential validation:
// {"credentials":{...}} → 200 {"valid":true} or 200 {"valid":false,"message":...}.
func ValidateHandler(newClient ClientFactory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "method not allowed"})
			return
		}
		var req InvokeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxToolRequestBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
			return
		}

		type validation struct {
			Valid   bool   `json:"valid"`
			Message string `json:"message,omitempty"`
		}
		if err := ValidateCredentials(r.Context(), newClient, req.Credentials); err != nil {
			writeJSON(w, http.StatusOK, validation{Valid: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, validation{Valid: true})
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
