package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mihaimyh/gomercury/pkg/banking"
)

type transactionParams struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

// TransactionDetail is the transaction shape returned to workflows.
type TransactionDetail struct {
	ID               string   `json:"id"`
	Amount           *float64 `json:"amount"`
	Status           string   `json:"status"`
	PostedAt         *string  `json:"posted_at"`
	CounterpartyName *string  `json:"counterparty_name"`
	BankDescription  *string  `json:"bank_description"`
	Note             *string  `json:"note"`
	Category         *string  `json:"category"`
	Type             *string  `json:"type"`
}

// GetTransactionDetail fetches one transaction. Expected failures (missing
// input, bad token, unknown id, network) are reported as text messages.
type GetTransactionDetail struct {
	NewClient ClientFactory
}

func (t *GetTransactionDetail) Name() string { return "get_transaction_detail" }

func (t *GetTransactionDetail) Invoke(ctx context.Context, creds Credentials, params map[string]interface{}) ([]Message, error) {
	if strings.TrimSpace(creds.AccessToken) == "" {
		return []Message{TextMessage(msgTokenRequired)}, nil
	}

	var p transactionParams
	if err := decodeParams(params, &p); err != nil {
		if _, ok := missingField(err); ok {
			return []Message{TextMessage("Transaction ID is required.")}, nil
		}
		return []Message{TextMessage("Invalid parameters: %v", err)}, nil
	}

	client, err := t.NewClient(creds.AccessToken)
	if err != nil {
		return nil, err
	}

	txn, err := client.GetTransaction(ctx, p.TransactionID)
	switch {
	case err == nil:
	case errors.Is(err, banking.ErrUnauthorized):
		return []Message{TextMessage(msgInvalidToken)}, nil
	case errors.Is(err, banking.ErrNotFound):
		return []Message{TextMessage("Transaction %s not found.", p.TransactionID)}, nil
	case isAPIError(err):
		return nil, err
	default:
		return []Message{TextMessage("Failed to fetch transaction details: %v", err)}, nil
	}

	return []Message{JSONMessage(TransactionDetail{
		ID:               txn.ID,
		Amount:           txn.Amount,
		Status:           txn.Status,
		PostedAt:         txn.PostedAt,
		CounterpartyName: txn.CounterpartyName,
		BankDescription:  txn.BankDescription,
		Note:             txn.Note,
		Category:         txn.Category,
		Type:             txn.Type,
	})}, nil
}

func isAPIError(err error) bool {
	var apiErr *banking.APIError
	return errors.As(err, &apiErr)
}
