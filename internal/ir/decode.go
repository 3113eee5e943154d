package ir

import (
	"encoding/json"
	"fmt"
)

// Decode converts a sanitized JSON object into the typed IR. Unknown fields
// are dropped; structural mismatches surface as an error.
func Decode(raw map[string]any) (*Query, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode IR JSON: %w", err)
	}

	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("IR does not match the expected shape: %w", err)
	}

	if q.Confidence == 0 {
		if _, present := raw["confidence"]; !present {
			q.Confidence = 1.0
		}
	}

	return &q, nil
}
