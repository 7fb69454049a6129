package mercury

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParsePayload decodes a webhook body. The body must be a non-empty JSON
// object; arrays, scalars and {} are rejected with ErrPayload. mergePatch,
// when present and not null, must itself be an object.
func ParsePayload(body []byte) (*RawEventPayload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, NewError(ErrPayload, ReasonEmptyBody, nil)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, NewError(ErrPayload, ReasonInvalidJSON, err)
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, NewError(ErrPayload, ReasonNotAnObject, fmt.Errorf("got %s", jsonKind(decoded)))
	}
	if len(obj) == 0 {
		return nil, NewError(ErrPayload, ReasonEmptyPayload, nil)
	}

	payload := &RawEventPayload{
		ID:            stringValue(obj["id"]),
		ResourceType:  stringValue(obj["resourceType"]),
		OperationType: stringValue(obj["operationType"]),
		ResourceID:    stringValue(obj["resourceId"]),
		MergePatch:    MergePatch{},
	}

	switch patch := obj["mergePatch"].(type) {
	case nil:
	case map[string]interface{}:
		payload.MergePatch = patch
	default:
		return nil, NewError(ErrPayload, ReasonInvalidMergePatch, fmt.Errorf("got %s", jsonKind(patch)))
	}

	return payload, nil
}

// IsTransaction reports whether the payload describes a transaction. The
// comparison ignores case; a missing resourceType is not a transaction.
func (p *RawEventPayload) IsTransaction() bool {
	return p != nil && strings.EqualFold(p.ResourceType, ResourceTypeTransaction)
}

// stringValue renders a decoded JSON value as a string. Absent and null map
// to "", strings pass through, other scalars keep their JSON text.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
