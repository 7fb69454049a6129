// Package banking is a small client for the Mercury banking REST API:
// accounts, transactions and webhook registrations.
package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/gomercury/pkg/mercury"
)

const (
	ProductionBaseURL = "https://api.mercury.com/api/v1"
	SandboxBaseURL    = "https://api-sandbox.mercury.com/api/v1"

	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 4 << 20
)

// Environment selects the API base URL.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// BaseURL returns the API base URL for e. The empty environment is production.
func (e Environment) BaseURL() (string, error) {
	switch Environment(strings.ToLower(string(e))) {
	case "", EnvironmentProduction:
		return ProductionBaseURL, nil
	case EnvironmentSandbox:
		return SandboxBaseURL, nil
	default:
		return "", fmt.Errorf("%w: unknown Mercury environment %q", mercury.ErrConfig, string(e))
	}
}

// Config configures a Client.
type Config struct {
	// AccessToken is the Mercury API token. Required.
	AccessToken string

	// Environment selects production or sandbox. Ignored when BaseURL is set.
	Environment Environment

	// BaseURL overrides the environment's base URL (tests, proxies).
	BaseURL string

	// HTTPClient is optional. If nil, a client with a 15s timeout is used.
	// No retries are performed either way.
	HTTPClient *http.Client

	Logger  mercury.Logger
	Metrics mercury.Metrics
}

// Client calls the Mercury API with a single access token.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      mercury.Logger
	metrics     mercury.Metrics
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		var err error
		if base, err = cfg.Environment.BaseURL(); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		baseURL:     base,
		accessToken: token,
		httpClient:  httpClient,
		logger:      mercury.LoggerOrNoop(cfg.Logger),
		metrics:     mercury.MetricsOrNoop(cfg.Metrics),
	}, nil
}

// BaseURL returns the API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListAccounts returns every account visible to the token.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out accountsResponse
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// ValidateCredentials checks the token by listing accounts.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	return c.do(ctx, "accounts", http.MethodGet, "/accounts", nil, nil)
}

// GetTransaction fetches one transaction by id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("transaction id is required")
	}
	var out Transaction
	if err := c.do(ctx, "transaction", http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWebhook registers a webhook endpoint with Mercury.
func (c *Client) CreateWebhook(ctx context.Context, req CreateWebhookRequest) (*Webhook, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, errors.New("webhook url is required")
	}
	var out Webhook
	if err := c.do(ctx, "webhooks_create", http.MethodPost, "/webhooks", req, &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		out.Status = WebhookStatusActive
	}
	return &out, nil
}

// DeleteWebhook removes a webhook registration. A 404 is returned as an
// error matching ErrNotFound; callers usually treat it as already deleted.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("webhook id is required")
	}
	return c.do(ctx, "webhooks_delete", http.MethodDelete, "/webhooks/"+url.PathEscape(id), nil, nil)
}

// do performs one request. Non-2xx answers become *APIError, transport
// failures wrap mercury.ErrUpstream.
func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out interface{}) error {
	start := time.Now()
	status := "network_error"
	defer func() {
		c.metrics.RecordAPICall(endpoint, status)
		c.metrics.RecordAPICallDuration(endpoint, time.Since(start))
	}()

	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json;charset=utf-8")
	if in != nil {
		req.Header.Set("Content-Type", "application/json;charset=utf-8")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("mercury API request failed",
			mercury.Field{Key: "endpoint", Value: endpoint},
			mercury.Field{Key: "error", Value: err},
		)
		return mercury.NewError(mercury.ErrUpstream, "network_error", err)
	}
	defer res.Body.Close()
	status = strconv.Itoa(res.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return mercury.NewError(mercury.ErrUpstream, "read_failed", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := newAPIError(res.StatusCode, raw)
		c.logger.Debug("mercury API error",
			mercury.Field{Key: "endpoint", Value: endpoint},
			mercury.Field{Key: "status", Value: res.StatusCode},
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return mercury.NewError(mercury.ErrUpstream, "invalid_response", err)
	}
	return nil
}
