// Package httpapi runs workflows through a host's REST API:
// POST {base}/workflows/{target}/run with a bearer key.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
	"github.com/mihaimyh/gomercury/pkg/workflow"
)

const (
	backendName        = "http"
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBodyBytes  = 4 * 1024
)

// Config configures an Invoker.
type Config struct {
	// BaseURL of the workflow host API, e.g. "https://workflows.example.com/v1". Required.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient is optional. If nil, a client with a 15s timeout is used.
	HTTPClient *http.Client

	Logger mercury.Logger
}

type runRequest struct {
	Inputs map[string]interface{} `json:"inputs"`
	Event  string                 `json:"event,omitempty"`
}

type runResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
	ID            string `json:"id"`
	Message       string `json:"message"`
}

// Invoker implements workflow.Invoker over HTTP. It never retries.
type Invoker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     mercury.Logger
}

// New creates an Invoker.
func New(cfg Config) (*Invoker, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: workflow API base URL is required", mercury.ErrConfig)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: invalid workflow API base URL: %v", mercury.ErrConfig, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if strings.HasPrefix(strings.ToLower(apiKey), "bearer ") {
		apiKey = strings.TrimSpace(apiKey[len("bearer "):])
	}
	return &Invoker{
		baseURL:    base,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     mercury.LoggerOrNoop(cfg.Logger),
	}, nil
}

// Invoke implements workflow.Invoker.
func (i *Invoker) Invoke(ctx context.Context, inv workflow.Invocation) (workflow.Run, error) {
	if inv.Target == "" {
		return workflow.Run{}, workflow.DispatchError(backendName, errors.New("workflow target is empty"))
	}

	payload, err := json.Marshal(runRequest{Inputs: inv.Inputs, Event: inv.Event})
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/run", i.baseURL, url.PathEscape(inv.Target))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if i.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+i.apiKey)
	}

	res, err := i.httpClient.Do(req)
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("failed to read response: %w", err))
	}

	var out runResponse
	_ = json.Unmarshal(body, &out)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = string(truncate(body, maxErrorBodyBytes))
		}
		return workflow.Run{}, workflow.DispatchError(backendName, fmt.Errorf("status %d: %s", res.StatusCode, msg))
	}

	id := out.WorkflowRunID
	if id == "" {
		id = out.ID
	}
	i.logger.Debug("workflow run requested",
		mercury.Field{Key: "target", Value: inv.Target},
		mercury.Field{Key: "run_id", Value: id},
		mercury.Field{Key: "status", Value: res.StatusCode},
	)
	return workflow.Run{ID: id}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
