package mercury

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload_Valid(t *testing.T) {
	p, err := ParsePayload([]byte(`{
		"id": "evt_1",
		"resourceType": "transaction",
		"operationType": "updated",
		"resourceId": "txn_1",
		"mergePatch": {"status": "posted", "amount": -12.5}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", p.ID)
	assert.Equal(t, "transaction", p.ResourceType)
	assert.Equal(t, "updated", p.OperationType)
	assert.Equal(t, "txn_1", p.ResourceID)
	assert.Equal(t, "posted", p.MergePatch["status"])
	assert.Equal(t, -12.5, p.MergePatch["amount"])
}

func TestParsePayload_MissingMergePatchIsEmpty(t *testing.T) {
	p, err := ParsePayload([]byte(`{"id":"evt_1","resourceType":"transaction"}`))
	require.NoError(t, err)
	assert.NotNil(t, p.MergePatch)
	assert.Empty(t, p.MergePatch)

	p, err = ParsePayload([]byte(`{"id":"evt_1","mergePatch":null}`))
	require.NoError(t, err)
	assert.Empty(t, p.MergePatch)
}

func TestParsePayload_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty body", "", ReasonEmptyBody},
		{"whitespace body", "  \n ", ReasonEmptyBody},
		{"not json", "not json", ReasonInvalidJSON},
		{"truncated", `{"id":`, ReasonInvalidJSON},
		{"trailing garbage", `{"id":"a"} x`, ReasonInvalidJSON},
		{"array", "[1,2,3]", ReasonNotAnObject},
		{"string", `"transaction"`, ReasonNotAnObject},
		{"number", "42", ReasonNotAnObject},
		{"null", "null", ReasonNotAnObject},
		{"empty object", "{}", ReasonEmptyPayload},
		{"merge patch array", `{"id":"a","mergePatch":[1]}`, ReasonInvalidMergePatch},
		{"merge patch string", `{"id":"a","mergePatch":"x"}`, ReasonInvalidMergePatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrPayload), "expected ErrPayload, got %v", err)
			assert.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestParsePayload_NonStringIdentifiers(t *testing.T) {
	p, err := ParsePayload([]byte(`{"id":123,"resourceType":"transaction","resourceId":true}`))
	require.NoError(t, err)
	assert.Equal(t, "123", p.ID)
	assert.Equal(t, "true", p.ResourceID)
}

// The two historical handlers disagreed on case ("transaction" vs lower()).
// Matching is case-insensitive; these cases pin that choice.
func TestRawEventPayload_IsTransaction(t *testing.T) {
	tests := []struct {
		resourceType string
		want         bool
	}{
		{"transaction", true},
		{"Transaction", true},
		{"TRANSACTION", true},
		{"account", false},
		{"transactions", false},
		{" transaction", false},
		{"", false},
	}

	for _, tt := range tests {
		p := &RawEventPayload{ResourceType: tt.resourceType}
		assert.Equal(t, tt.want, p.IsTransaction(), "resourceType %q", tt.resourceType)
	}

	var nilPayload *RawEventPayload
	assert.False(t, nilPayload.IsTransaction())
}

func TestRequest_PayloadIsMemoized(t *testing.T) {
	body := []byte(`{"id":"evt_1","resourceType":"transaction"}`)
	r := NewRequest(http.MethodPost, http.Header{"Content-Type": []string{"application/json"}}, body)

	first, err := r.Payload()
	require.NoError(t, err)

	// Mutating the captured body after the first parse must not change the result.
	r.Body[2] = 'X'
	second, err := r.Payload()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "evt_1", second.ID)
}

func TestRequest_PayloadErrorIsMemoized(t *testing.T) {
	r := NewRequest(http.MethodPost, http.Header{}, []byte("[1,2,3]"))

	_, err1 := r.Payload()
	_, err2 := r.Payload()
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
}

func TestRequest_HeadersAreCopied(t *testing.T) {
	h := http.Header{}
	h.Set(SignatureHeaderName, "t=1,v1=ab")
	r := NewRequest(http.MethodPost, h, nil)

	h.Set(SignatureHeaderName, "changed")
	assert.Equal(t, "t=1,v1=ab", r.Header.Get(SignatureHeaderName))
}
