package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mihaimyh/gomercury/pkg/banking"
)

// CredentialError explains why provider credentials were rejected. Message
// is safe to show to the user.
type CredentialError struct {
	Message string
	Err     error
}

func (e *CredentialError) Error() string { return e.Message }
func (e *CredentialError) Unwrap() error { return e.Err }

// ValidateCredentials checks creds by listing accounts.
func ValidateCredentials(ctx context.Context, newClient ClientFactory, creds Credentials) error {
	if strings.TrimSpace(creds.AccessToken) == "" {
		return &CredentialError{Message: msgTokenRequired, Err: banking.ErrMissingToken}
	}
	client, err := newClient(creds.AccessToken)
	if err != nil {
		return &CredentialError{Message: err.Error(), Err: err}
	}

	err = client.ValidateCredentials(ctx)
	var apiErr *banking.APIError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, banking.ErrUnauthorized):
		return &CredentialError{Message: msgInvalidToken, Err: err}
	case errors.As(err, &apiErr):
		return &CredentialError{Message: fmt.Sprintf("Mercury API validation failed: %s", apiErr.Message), Err: err}
	default:
		return &CredentialError{Message: fmt.Sprintf("Failed to connect to Mercury API: %v", err), Err: err}
	}
}
