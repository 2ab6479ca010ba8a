// Package jsondoc handles the open JSON documents stored in jsonb columns.
package jsondoc

import (
	"bytes"
	"encoding/json"
)

// Normalize round-trips doc through JSON so nested values take the shapes
// the database returns: map[string]any, []any and json.Number.
func Normalize(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal compares two documents by their canonical JSON encoding.
func Equal(a, b map[string]any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
