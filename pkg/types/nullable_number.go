package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NullableNumber keeps the raw text of a numeric JSON field so it can be
// normalized downstream. Strings and bare numbers are accepted, null marks an
// explicit clear and an absent field leaves Valid false.
type NullableNumber struct {
	Valid bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableNumber) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Valid = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var text string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
	} else {
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return fmt.Errorf("expected a number or string: %w", err)
		}
		text = num.String()
	}
	n.Value = &text
	return nil
}

// Text returns the raw text, or "" for an explicit null.
func (n NullableNumber) Text() string {
	if n.Value == nil {
		return ""
	}
	return *n.Value
}
