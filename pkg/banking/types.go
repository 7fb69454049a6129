package banking

// Account is a Mercury bank account.
type Account struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Kind             string   `json:"kind,omitempty"`
	Status           string   `json:"status,omitempty"`
	AvailableBalance *float64 `json:"availableBalance"`
	CurrentBalance   *float64 `json:"currentBalance,omitempty"`
	Currency         string   `json:"currency,omitempty"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Transaction is a Mercury transaction. Nullable fields are pointers.
type Transaction struct {
	ID               string   `json:"id"`
	AccountID        string   `json:"accountId,omitempty"`
	Amount           *float64 `json:"amount"`
	Status           string   `json:"status"`
	PostedAt         *string  `json:"postedAt"`
	CounterpartyName *string  `json:"counterpartyName"`
	BankDescription  *string  `json:"bankDescription"`
	Note             *string  `json:"note"`
	Category         *string  `json:"category"`
	Type             *string  `json:"type"`
}

// Webhook statuses reported by Mercury.
const (
	WebhookStatusActive   = "active"
	WebhookStatusDisabled = "disabled"
)

// CreateWebhookRequest is the body of POST /webhooks.
type CreateWebhookRequest struct {
	URL         string   `json:"url"`
	EventTypes  []string `json:"eventTypes,omitempty"`
	FilterPaths []string `json:"filterPaths,omitempty"`
}

// Webhook is a webhook registration. Secret signs deliveries and is only
// returned on creation.
type Webhook struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Secret string `json:"secret,omitempty"`
	Status string `json:"status,omitempty"`
}
