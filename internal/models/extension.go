package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ExtensionFields are remote fields the service recognizes but does not interpret.
// They are carried through to storage and API responses untouched.
var ExtensionFields = []string{"userTokenId", "creator", "notifyExist", "skipPp", "notifyId"}

// Extension holds opaque pass-through fields of a land record.
type Extension map[string]json.RawMessage

// Scan implements sql.Scanner for the JSON text column holding the extension fields.
func (e *Extension) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan Extension: expected []byte or string, got %T", value)
	}
	if len(raw) == 0 {
		*e = nil
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("failed to unmarshal extension fields: %w", err)
	}
	if len(fields) == 0 {
		fields = nil
	}
	*e = fields
	return nil
}

// Value implements driver.Valuer. Empty extensions are stored as NULL.
func (e Extension) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(map[string]json.RawMessage(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extension fields: %w", err)
	}
	return string(raw), nil
}

// Bool decodes a boolean-ish extension field. Numbers other than 0 count as true.
func (e Extension) Bool(name string) bool {
	raw, ok := e[name]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}
