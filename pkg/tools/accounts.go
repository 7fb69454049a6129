package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mihaimyh/gomercury/pkg/banking"
)

const (
	msgTokenRequired = "Mercury API Access Token is required."
	msgInvalidToken  = "Invalid or expired Mercury API access token."
)

// AccountSummary is the simplified account shape returned to workflows.
type AccountSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Balance  *float64 `json:"balance"`
	Currency string   `json:"currency"`
}

// GetAccounts lists every account for the token.
type GetAccounts struct {
	NewClient ClientFactory
}

func (t *GetAccounts) Name() string { return "get_accounts" }

// Invoke returns one JSON message holding the account list.
func (t *GetAccounts) Invoke(ctx context.Context, creds Credentials, _ map[string]interface{}) ([]Message, error) {
	if strings.TrimSpace(creds.AccessToken) == "" {
		return []Message{TextMessage(msgTokenRequired)}, nil
	}
	client, err := t.NewClient(creds.AccessToken)
	if err != nil {
		return nil, err
	}

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		if errors.Is(err, banking.ErrUnauthorized) {
			return []Message{TextMessage(msgInvalidToken)}, nil
		}
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := make([]AccountSummary, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, AccountSummary{
			ID:       acc.ID,
			Name:     acc.Name,
			Type:     acc.Type,
			Balance:  acc.AvailableBalance,
			Currency: acc.Currency,
		})
	}
	return []Message{JSONMessage(out)}, nil
}
