// Package mercury implements verification and normalization of Mercury
// banking webhook deliveries: the signed "t=...,v1=..." header check, the
// JSON merge-patch payload parser with its resource filter, and the
// projection of a transaction event onto a flat set of workflow inputs.
package mercury

import (
	"net/http"
	"sync"
)

// ResourceTypeTransaction is the only resource type forwarded to workflows.
const ResourceTypeTransaction = "transaction"

// Operation types Mercury sends for transactions.
const (
	OperationCreated = "created"
	OperationUpdated = "updated"
)

// MergePatch holds only the fields that changed on a resource. An absent key
// means "unchanged", never "cleared".
type MergePatch map[string]interface{}

// RawEventPayload is the top-level webhook body.
type RawEventPayload struct {
	ID            string
	ResourceType  string
	OperationType string
	ResourceID    string
	MergePatch    MergePatch
}

// Binding is the per-integration configuration a webhook request is checked
// and routed with. Secret may be empty (verification skipped); Target names
// the workflow to run.
type Binding struct {
	Secret Secret
	Target string
}

// Request is a captured inbound webhook request. It is immutable after
// construction; the parsed payload is computed once on first use.
type Request struct {
	Method string
	Header http.Header
	Body   []byte

	once    sync.Once
	payload *RawEventPayload
	err     error
}

// NewRequest captures method, headers and the exact raw body.
func NewRequest(method string, header http.Header, body []byte) *Request {
	return &Request{
		Method: method,
		Header: header.Clone(),
		Body:   body,
	}
}

// Payload parses the body on first call and returns the memoized result afterwards.
func (r *Request) Payload() (*RawEventPayload, error) {
	r.once.Do(func() {
		r.payload, r.err = ParsePayload(r.Body)
	})
	return r.payload, r.err
}

// Verify checks the request signature against secret.
func (r *Request) Verify(secret Secret) Verification {
	return Verify(r.Header, r.Body, secret)
}
