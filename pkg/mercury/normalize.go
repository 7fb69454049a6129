package mercury

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// TransactionEvent is the flat, stable projection of a transaction webhook.
// Every field is always present; Amount is nil when the merge patch carries
// no amount, which is different from a zero amount.
type TransactionEvent struct {
	EventID          string   `json:"event_id"`
	TransactionID    string   `json:"transaction_id"`
	OperationType    string   `json:"operation_type"`
	AccountID        string   `json:"account_id"`
	Amount           *float64 `json:"amount"`
	Status           string   `json:"status"`
	PostedAt         string   `json:"posted_at"`
	CounterpartyName string   `json:"counterparty_name"`
	BankDescription  string   `json:"bank_description"`
	Note             string   `json:"note"`
	Category         string   `json:"category"`
	TransactionType  string   `json:"transaction_type"`
}

// Normalize maps a parsed payload onto a TransactionEvent. It is pure and
// total: missing merge-patch keys become "" (or nil for Amount).
func Normalize(p *RawEventPayload) TransactionEvent {
	if p == nil {
		return TransactionEvent{}
	}
	patch := p.MergePatch
	return TransactionEvent{
		EventID:          p.ID,
		TransactionID:    p.ResourceID,
		OperationType:    p.OperationType,
		AccountID:        patch.String("accountId"),
		Amount:           patch.Number("amount"),
		Status:           patch.String("status"),
		PostedAt:         patch.String("postedAt"),
		CounterpartyName: patch.String("counterpartyName"),
		BankDescription:  patch.String("bankDescription"),
		Note:             patch.String("note"),
		Category:         patch.String("category"),
		TransactionType:  patch.String("type"),
	}
}

// Inputs returns the event as a flat input mapping for a workflow run.
// amount is a float64 or nil.
func (e TransactionEvent) Inputs() map[string]interface{} {
	var amount interface{}
	if e.Amount != nil {
		amount = *e.Amount
	}
	return map[string]interface{}{
		"event_id":          e.EventID,
		"transaction_id":    e.TransactionID,
		"operation_type":    e.OperationType,
		"account_id":        e.AccountID,
		"amount":            amount,
		"status":            e.Status,
		"posted_at":         e.PostedAt,
		"counterparty_name": e.CounterpartyName,
		"bank_description":  e.BankDescription,
		"note":              e.Note,
		"category":          e.Category,
		"transaction_type":  e.TransactionType,
	}
}

// String returns the value of key as a string, "" when absent or null.
func (m MergePatch) String(key string) string {
	return stringValue(m[key])
}

// Number returns the value of key as a float64. Numeric strings are parsed;
// absent, null, non-numeric and non-finite values ("NaN", "Inf") yield nil.
func (m MergePatch) Number(key string) *float64 {
	var f float64
	switch t := m[key].(type) {
	case float64:
		f = t
	case json.Number:
		v, err := t.Float64()
		if err != nil {
			return nil
		}
		f = v
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = v
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Has reports whether key is present in the patch.
func (m MergePatch) Has(key string) bool {
	_, ok := m[key]
	return ok
}
