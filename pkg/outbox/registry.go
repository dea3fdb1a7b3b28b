package outbox

import (
	"encoding/json"
	"fmt"
)

// DecodeEnvelope parses an outbox payload and unmarshals its data into out.
func DecodeEnvelope(raw []byte, out any) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if out == nil {
		return envelope, nil
	}
	if len(envelope.Data) == 0 {
		return envelope, fmt.Errorf("envelope %s has no data", envelope.EventID)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return envelope, fmt.Errorf("decode envelope data: %w", err)
	}
	return envelope, nil
}
