// Package tools exposes read-only Mercury API calls as named plugin tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gomercury/pkg/banking"
)

// MessageType is the kind of a tool output message.
type MessageType string

const (
	MessageText MessageType = "text"
	MessageJSON MessageType = "json"
)

// Message is one unit of tool output.
type Message struct {
	Type MessageType `json:"type"`
	Text string      `json:"text,omitempty"`
	JSON interface{} `json:"json,omitempty"`
}

// TextMessage returns a text message.
func TextMessage(format string, args ...interface{}) Message {
	return Message{Type: MessageText, Text: fmt.Sprintf(format, args...)}
}

// JSONMessage returns a structured message.
func JSONMessage(v interface{}) Message {
	return Message{Type: MessageJSON, JSON: v}
}

// Credentials are the per-call provider credentials.
type Credentials struct {
	AccessToken string `json:"access_token"`
}

// Tool is a named, invokable operation.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, creds Credentials, params map[string]interface{}) ([]Message, error)
}

// ClientFactory builds a banking client for one access token.
type ClientFactory func(accessToken string) (*banking.Client, error)

// NewClientFactory returns a factory that reuses cfg with a per-call token.
func NewClientFactory(cfg banking.Config) ClientFactory {
	return func(accessToken string) (*banking.Client, error) {
		c := cfg
		c.AccessToken = accessToken
		return banking.NewClient(c)
	}
}

var validate = validator.New()

// decodeParams copies params into dst through JSON and validates dst's
// `validate` struct tags.
func decodeParams(params map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// missingField returns the json name of the first required field that failed validation.
func missingField(err error) (string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "", false
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return fe.Field(), true
		}
	}
	return "", false
}

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry pre-populated with tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.New("tool name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with get_accounts and get_transaction_detail.
func Default(newClient ClientFactory) *Registry {
	r, _ := NewRegistry(
		&GetAccounts{NewClient: newClient},
		&GetTransactionDetail{NewClient: newClient},
	)
	return r
}
