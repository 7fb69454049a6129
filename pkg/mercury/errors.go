package mercury

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when a webhook request fails signature verification
	ErrAuth = errors.New("webhook authentication failed")

	// ErrPayload is returned when a webhook body is missing, not JSON, or has the wrong shape
	ErrPayload = errors.New("invalid webhook payload")

	// ErrConfig is returned when required configuration (e.g. the target workflow) is absent
	ErrConfig = errors.New("integration not configured")

	// ErrDispatch is returned when the downstream workflow invocation fails
	ErrDispatch = errors.New("workflow dispatch failed")

	// ErrUpstream is returned when the banking API answers non-2xx or cannot be reached
	ErrUpstream = errors.New("banking API error")

	// ErrSubscriptionNotFound is returned when no subscription exists for an identifier
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Reason codes attached to *Error values.
const (
	ReasonMissingSignatureHeader   = "missing_signature_header"
	ReasonMalformedSignatureHeader = "malformed_signature_header"
	ReasonSignatureMismatch        = "signature_mismatch"
	ReasonEmptyBody                = "empty_body"
	ReasonInvalidJSON              = "invalid_json"
	ReasonNotAnObject              = "not_an_object"
	ReasonEmptyPayload             = "empty_payload"
	ReasonInvalidMergePatch        = "invalid_merge_patch"
	ReasonMissingTarget            = "missing_target"
)

// Error is a classified failure. Kind is one of the sentinel errors above,
// Reason is a stable machine-readable code, Err is the optional cause.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

// NewError creates a classified error.
func NewError(kind error, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ReasonOf returns the reason code carried by err, or "" when err is not classified.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
